package middleware

import (
	"context"

	"mcp-pii-proxy/internal/envelope"
	"mcp-pii-proxy/internal/kernel"
	"mcp-pii-proxy/internal/ner"
	"mcp-pii-proxy/internal/profile"
)

// ResourceLayer is the kernel.Layer specialization for the resource
// pipeline.
type ResourceLayer = kernel.Layer[*envelope.ResourceRequest, *envelope.ResourceResponse]

// ResourceNext is the kernel.Next specialization for the resource pipeline.
type ResourceNext = kernel.Next[*envelope.ResourceRequest, *envelope.ResourceResponse]

// NewPIIResource builds the PII resource middleware layer (spec.md §4.6).
// Unlike the tool middleware, no annotation is attached: resources are
// static reference content and the audit layer is not installed on this
// pipeline.
func NewPIIResource(prof profile.Profile, features Features, client ner.Client) ResourceLayer {
	return func(ctx context.Context, req *envelope.ResourceRequest, next ResourceNext) (*envelope.ResourceResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return resp, nil
		}

		summary := envelope.NewRedactionSummary()
		newItems := make([]envelope.ResourceItem, len(resp.Contents))
		for i, item := range resp.Contents {
			if !item.IsText {
				newItems[i] = item
				continue
			}
			masked, err := redactText(ctx, item.Text, prof, features, client, summary)
			if err != nil {
				return nil, err
			}
			newItems[i] = envelope.ResourceItem{
				URI:      item.URI,
				MIMEType: item.MIMEType,
				IsText:   true,
				Text:     masked,
			}
		}

		return &envelope.ResourceResponse{Contents: newItems}, nil
	}
}
