package provider

import "fmt"

// SystemPrompt is sent as the system message by chat-style backends.
const SystemPrompt = "You are a helpful assistant for cataloguing forms."

// Temperature used for every description request.
const Temperature = 0.3

const describePrompt = `You are helping catalogue official administrative forms used by the Nigerian Correctional Service (NCoS).
Form Number: %s
Title: %s

Write a clear, neutral, 2-4 sentence description covering:
- What the form/book is for
- Who typically uses it
- When or how often it is used
Avoid sensitive data or legal advice. Keep it concise and practical.`

// DescribePrompt builds the description request for one catalogue record.
func DescribePrompt(number, title string) string {
	return fmt.Sprintf(describePrompt, number, title)
}
