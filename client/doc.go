// Package client contains the shared plumbing for core.AgentClient
// implementations: the HTTP client with the connect and total timeouts
// every vendor call uses, the error classifier that turns transport
// failures into *core.AgentError values, and Mock, a scripted in-memory
// client for tests and demos.
//
// Vendor implementations live in the sub packages openai, anthropic and
// gemini. Each issues exactly one outbound call per Complete and never
// retries; retry policy belongs to the engine.
package client
