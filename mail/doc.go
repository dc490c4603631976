// Package mail renders and delivers the verification and password reset
// mails sent by the auth engine.
//
// [Templates] builds messages; [LogMailer] and [SMTPMailer] deliver them;
// [Throttled] bounds the send rate of any [Mailer]. Delivery is best effort:
// the engine logs and counts failures but never fails a request over them.
package mail
