package cmdutil

import "k8s.io/klog/v2"

// Warn logs a warning-severity message through log. klog's structured logger has no
// warning level, so the record carries a WARNING prefix instead.
func Warn(log klog.Logger, msg string, kv ...any) {
	log.WithCallDepth(1).Info("WARNING: "+msg, kv...)
}

// Warnings logs each message in msgs with Warn.
func Warnings(log klog.Logger, msgs []string) {
	for _, m := range msgs {
		log.WithCallDepth(1).Info("WARNING: " + m)
	}
}
