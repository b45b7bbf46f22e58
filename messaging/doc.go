// Package messaging implements the auth.Messenger capability. A Mailer
// renders the verification and welcome emails from embedded django templates
// and passes them to a Sender: SMTPSender for a real relay, LogSender for
// development, MemorySender for tests.
package messaging
