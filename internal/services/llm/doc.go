// Package llm wraps an OpenAI-compatible chat completions endpoint.
//
// The client is the pipeline's only text-generation collaborator. Every
// request runs with a configurable HTTP timeout and a bounded
// retry-with-backoff loop; rate-limit responses honor Retry-After. JSON
// payloads returned by models are decoded tolerantly (code fences and
// surrounding prose are stripped) because stage prompts ask for JSON but
// providers do not always comply exactly.
package llm
