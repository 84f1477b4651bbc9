package ner

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	comprehendtypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"
)

// ComprehendClient implements Client against Amazon Comprehend's
// ContainsPiiEntities / DetectPiiEntities APIs, which match exactly the
// two-operation shape spec.md §4.3 describes: a cheap yes/no probe and a
// span-locating detector.
type ComprehendClient struct {
	svc *comprehend.Client
}

// NewComprehendClient builds a client for the given AWS region (spec.md
// §6's AWS_REGION). Credentials are resolved the standard SDK way
// (environment, shared config, instance role, …) — this repository never
// handles AWS credentials directly.
func NewComprehendClient(ctx context.Context, region string) (*ComprehendClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ner: load aws config: %w", err)
	}
	return &ComprehendClient{svc: comprehend.NewFromConfig(cfg)}, nil
}

// ContainsPII calls ContainsPiiEntities and returns the label names found.
func (c *ComprehendClient) ContainsPII(ctx context.Context, text, language string) ([]string, error) {
	out, err := c.svc.ContainsPiiEntities(ctx, &comprehend.ContainsPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: comprehendtypes.LanguageCode(language),
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend ContainsPiiEntities: %w", err)
	}
	labels := make([]string, 0, len(out.Labels))
	for _, l := range out.Labels {
		labels = append(labels, string(l.Name))
	}
	return labels, nil
}

// DetectPII calls DetectPiiEntities and translates the result into
// package-local Entity values.
func (c *ComprehendClient) DetectPII(ctx context.Context, text, language string) ([]Entity, error) {
	out, err := c.svc.DetectPiiEntities(ctx, &comprehend.DetectPiiEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: comprehendtypes.LanguageCode(language),
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend DetectPiiEntities: %w", err)
	}
	entities := make([]Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		if e.BeginOffset == nil || e.EndOffset == nil {
			continue
		}
		entities = append(entities, Entity{
			Type:        string(e.Type),
			BeginOffset: int(*e.BeginOffset),
			EndOffset:   int(*e.EndOffset),
		})
	}
	return entities, nil
}
