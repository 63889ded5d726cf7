// Package contribution implements the contribution lifecycle: creation,
// contributor identity attachment, email confirmation and featuring.
//
// A contribution starts in pending_confirmation without identity. The
// contributor then attaches a name and email, which triggers the duplicate
// guard and sends a one-time confirmation link. Following the link moves the
// row to confirmed. Only confirmed contributions can be featured, and the
// number of featured rows is bounded by the owner's plan.
//
// The flagged bit is never written here; see package moderation.
package contribution
