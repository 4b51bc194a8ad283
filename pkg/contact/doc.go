// Package contact accepts contact form submissions.
package contact
