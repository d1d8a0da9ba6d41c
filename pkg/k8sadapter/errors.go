package k8sadapter

import "errors"

// ErrMetricsUnavailable is returned by TopPods when no metrics-server
// clientset was wired at startup.
var ErrMetricsUnavailable = errors.New("metrics-server not available")
