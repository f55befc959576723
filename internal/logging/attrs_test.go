package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttributes(t *testing.T) {
	tests := []struct {
		attr    slog.Attr
		wantKey string
		want    string
	}{
		{Operation("sync"), KeyOperation, "sync"},
		{Context("kind-dev"), KeyContext, "kind-dev"},
		{Cluster("kind-dev-cluster"), KeyCluster, "kind-dev-cluster"},
		{Namespace("kube-system"), KeyNamespace, "kube-system"},
		{Resource("deployments"), KeyResource, "deployments"},
		{Reason("watch closed"), KeyReason, "watch closed"},
		{Duration(1500 * time.Millisecond), KeyDuration, "1.5s"},
		{Err(nil), KeyError, ""},
		{Err(errors.New("forbidden")), KeyError, "forbidden"},
		{SanitizedErr(nil), KeyError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.wantKey+"="+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.String())
		})
	}
}

func TestRedactingAttributes(t *testing.T) {
	attr := SanitizedErr(errors.New(`Get "https://192.168.1.100:6443/version": dial tcp 192.168.1.100:6443: connect: connection refused`))
	assert.NotContains(t, attr.Value.String(), "192.168.1.100")
	assert.Contains(t, attr.Value.String(), "connection refused")

	attr = SanitizedErr(errors.New("Get https://api.prod.example.com:6443/version: timeout"))
	assert.Contains(t, attr.Value.String(), "api.prod.example.com")

	attr = Host("https://10.1.2.3:6443")
	assert.Equal(t, KeyHost, attr.Key)
	assert.Equal(t, "https://<redacted-ip>:6443", attr.Value.String())
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	WithContext(base, "prod").Info("checked")
	assert.Contains(t, buf.String(), `"context":"prod"`)

	buf.Reset()
	WithResource(base, "kind-dev", "pods").Info("synced")
	assert.Contains(t, buf.String(), `"context":"kind-dev"`)
	assert.Contains(t, buf.String(), `"resource":"pods"`)
}
