// Package reply generates the assistant's next turn. Service reads a
// session's bounded history, prepends the persona directive, asks a
// chat-completion Engine for one reply and records it as an assistant
// message. OpenAIClient is the Engine for OpenAI-compatible APIs.
package reply
