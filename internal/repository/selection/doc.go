// Package selection persists the last emergency contact and sensor selection.
//
// The FileRepository stores and loads the selection as JSON on disk so a
// restarted daemon re-arms with the same contact and device. The escalation
// session itself is never persisted.
package selection
