// Package internal holds helpers shared by the goOTP internal packages,
// currently the uniform numeric code generator.
package internal
