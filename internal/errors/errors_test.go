package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", Transient("fetch_context", "k8s", fmt.Errorf("timeout")), true},
		{"unsupported", Unsupported("execute_action", "k8s", fmt.Errorf("nope")), false},
		{"forbidden", Forbidden("execute_action", "k8s", fmt.Errorf("denied")), false},
		{"semantic", Semantic("execute_action", "k8s", fmt.Errorf("bad params")), false},
		{"untagged", fmt.Errorf("plain error"), false},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	base := Transient("fetch_context", "prometheus", fmt.Errorf("dial tcp: timeout"))
	wrapped := fmt.Errorf("aggregator: %w", base)

	if KindOf(wrapped) != KindTransient {
		t.Errorf("KindOf(wrapped) = %v, want %v", KindOf(wrapped), KindTransient)
	}
	if !IsRetryable(wrapped) {
		t.Error("wrapped transient error should remain retryable through errors.As")
	}

	var asErr *Error
	if !errors.As(wrapped, &asErr) {
		t.Fatal("expected errors.As to unwrap to *Error")
	}
	if asErr.Adapter != "prometheus" {
		t.Errorf("Adapter = %q, want %q", asErr.Adapter, "prometheus")
	}
}

func TestErrorString(t *testing.T) {
	err := New(KindForbidden, "execute_action", "k8s", fmt.Errorf("delete namespace kube-system"))
	want := "forbidden: execute_action(k8s): delete namespace kube-system"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
