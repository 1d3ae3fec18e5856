// Package provider sends chat requests to the hosted model APIs osram
// supports (Zhipu, Anthropic, Gemini and OpenAI) and normalizes their
// replies.
//
// Every vendor is reached through the same ProviderClient interface. New
// looks the implementation up by provider id, so callers never branch on
// the vendor:
//
//	client, err := provider.New(pc, provider.WithTimeout(cfg.Timeout))
//	resp, err := client.Send(ctx, provider.ChatRequest{
//	    Messages: []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
//	})
//
// Each call makes exactly one HTTP request. Failures are reported as
// *AuthenticationError, *RateLimitError, *ProviderUnavailableError,
// *MalformedResponseError or *RequestError. Retry is an opt-in helper for
// callers that want to try again on transient errors.
package provider
