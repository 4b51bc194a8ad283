// Package mail sends the password reset and contact notification emails.
//
// SMTPMailer delivers through jordan-wright/email with PLAIN auth; LogMailer
// stands in when no SMTP host is configured. Both are wrapped by
// RetryingMailer, which retries failures with exponential backoff.
package mail
