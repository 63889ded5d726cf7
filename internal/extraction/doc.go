// Package extraction provides the LLM capability used by screenshot imports.
//
// A Client performs two stages:
//   - ReadText transcribes the text visible in a screenshot (OCR).
//   - ExtractFields turns that text into a JSON document describing the
//     praise: excerpt, giver, source and traits.
//
// Clients return raw model text. Parsing, vocabulary filtering and the
// review gate live in package imports, so a misbehaving model can never
// push unvetted values past the pipeline.
//
// # Providers
//
//   - anthropic: Messages API over HTTP
//   - openai: Chat Completions API over HTTP
//   - langchain: any OpenAI-compatible endpoint through langchaingo
//   - disabled: every call returns ErrDisabled and imports land in review
//
// The HTTP clients share a token-bucket rate limiter and retry 429 and 5xx
// responses with exponential backoff.
package extraction
