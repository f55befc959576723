package output

import (
	"fmt"
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
)

func TestNewProcessor(t *testing.T) {
	if p := NewProcessor(nil); p.Config().MaxItems != DefaultMaxItems {
		t.Errorf("MaxItems = %d, want %d", p.Config().MaxItems, DefaultMaxItems)
	}

	p := NewProcessor(&Config{MaxItems: 5000})
	if p.Config().MaxItems != AbsoluteMaxItems {
		t.Errorf("MaxItems = %d, want %d", p.Config().MaxItems, AbsoluteMaxItems)
	}
}

func TestProcessor_Process(t *testing.T) {
	secret := newObject("Secret", "default", "creds", map[string]interface{}{
		"data": map[string]interface{}{"key": "dmFsdWU="},
	})
	_ = unstructured.SetNestedField(secret.Object, "123", "metadata", "resourceVersion")

	sets := []ContextItems{
		{ContextName: "dev", Items: []*unstructured.Unstructured{pod("default", "b", "Running"), secret, pod("default", "a", "Pending")}},
		{ContextName: "prod", Items: nil},
	}

	p := NewProcessor(DefaultConfig())
	got := p.Process(sets, Request{})

	if len(got.Contexts) != 2 {
		t.Fatalf("len(Contexts) = %d, want 2", len(got.Contexts))
	}
	dev := got.Contexts[0]
	if dev.ContextName != "dev" || dev.Total != 3 || len(dev.Items) != 3 {
		t.Fatalf("unexpected dev output: %+v", dev)
	}

	names := make([]string, 0, len(dev.Items))
	for _, item := range dev.Items {
		names = append(names, (&unstructured.Unstructured{Object: item}).GetName())
	}
	if fmt.Sprint(names) != "[a b creds]" {
		t.Errorf("items not sorted by name: %v", names)
	}

	masked := dev.Items[2]
	if masked["data"].(map[string]interface{})["key"] != RedactedValue {
		t.Error("secret data should be masked")
	}
	if _, found, _ := unstructured.NestedString(masked, "metadata", "resourceVersion"); found {
		t.Error("resourceVersion should be removed in slim mode")
	}
	if got.SecretsMasked != 1 || !got.SlimApplied {
		t.Errorf("SecretsMasked = %d, SlimApplied = %v", got.SecretsMasked, got.SlimApplied)
	}

	if got.Contexts[1].Total != 0 || len(got.Contexts[1].Items) != 0 {
		t.Errorf("unexpected prod output: %+v", got.Contexts[1])
	}

	if v, _, _ := unstructured.NestedString(secret.Object, "metadata", "resourceVersion"); v != "123" {
		t.Error("Process mutated the cached object")
	}
}

func TestProcessor_ProcessLimits(t *testing.T) {
	var items []*unstructured.Unstructured
	for i := 0; i < 30; i++ {
		items = append(items, pod("default", fmt.Sprintf("pod-%02d", i), "Running"))
	}
	sets := []ContextItems{{ContextName: "a", Items: items}, {ContextName: "b"}, {ContextName: "c"}}

	p := NewProcessor(&Config{MaxItems: 50, MaxContexts: 10, SummaryThreshold: 20})
	got := p.Process(sets, Request{Limit: 5, ContextLimit: 2})

	if len(got.Contexts) != 2 || got.Warning == nil || got.Warning.Total != 3 {
		t.Fatalf("context truncation: %d contexts, warning %+v", len(got.Contexts), got.Warning)
	}
	a := got.Contexts[0]
	if len(a.Items) != 5 || a.Total != 30 {
		t.Errorf("items = %d, total = %d", len(a.Items), a.Total)
	}
	if a.Warning == nil || !a.Warning.SuggestSummary {
		t.Errorf("expected a warning suggesting summary mode, got %+v", a.Warning)
	}
}

func TestProcessor_ProcessNamespaceAndSummary(t *testing.T) {
	sets := []ContextItems{{
		ContextName: "dev",
		Items: []*unstructured.Unstructured{
			pod("default", "a", "Running"),
			pod("kube-system", "b", "Running"),
		},
	}}

	p := NewProcessor(nil)

	filtered := p.Process(sets, Request{Namespace: "kube-system"})
	if filtered.Contexts[0].Total != 1 {
		t.Errorf("Total = %d, want 1", filtered.Contexts[0].Total)
	}

	summary := p.Process(sets, Request{Summary: true})
	out := summary.Contexts[0]
	if out.Summary == nil || out.Summary.Total != 2 || out.Items != nil {
		t.Errorf("unexpected summary output: %+v", out)
	}
	if summary.SlimApplied {
		t.Error("SlimApplied should be false in summary mode")
	}
}

func TestProcessor_ProcessLabelSelector(t *testing.T) {
	web := pod("default", "web", "Running")
	web.SetLabels(map[string]string{"app": "web"})
	db := pod("default", "db", "Running")
	db.SetLabels(map[string]string{"app": "db"})

	selector, err := labels.Parse("app=web")
	if err != nil {
		t.Fatal(err)
	}

	got := NewProcessor(nil).Process([]ContextItems{{ContextName: "dev", Items: []*unstructured.Unstructured{web, db}}}, Request{Selector: selector})

	out := got.Contexts[0]
	if out.Total != 1 || len(out.Items) != 1 {
		t.Fatalf("Total = %d, items = %d, want 1", out.Total, len(out.Items))
	}
	if name := (&unstructured.Unstructured{Object: out.Items[0]}).GetName(); name != "web" {
		t.Errorf("name = %q, want web", name)
	}
}
