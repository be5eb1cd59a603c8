// Package dedupe remembers which agent metadata the collector has already
// stored, so re-delivered dictionary entries are acknowledged without being
// handled twice within a configurable window.
package dedupe
