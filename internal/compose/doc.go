// Package compose implements the email composition pipeline: building the model
// request from a prompt, formatting the model's answer into a safe HTML body,
// validating a dispatch and assembling the outbound multipart message.
package compose
