// Package imports turns uploaded screenshots of past praise into reviewable
// imported feedback.
//
// Records move through pending_processing, then extracted or
// requires_review, then approved. Processing never fails the caller because
// of the model: an unreadable image or an unparseable answer leaves the record
// in requires_review with placeholder text the owner replaces on approval.
package imports
