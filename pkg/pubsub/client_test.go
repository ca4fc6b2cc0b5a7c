package pubsub

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "freshcart-prod"}

	cases := []struct {
		kind resourceKind
		in   string
		want string
	}{
		{kindTopic, "fc-order-events", "projects/freshcart-prod/topics/fc-order-events"},
		{kindTopic, "projects/other/topics/x", "projects/other/topics/x"},
		{kindSubscription, " fc-order-events-analytics ", "projects/freshcart-prod/subscriptions/fc-order-events-analytics"},
		{kindSubscription, "projects/other/topics/x", "projects/freshcart-prod/subscriptions/projects/other/topics/x"},
		{kindSubscription, "", ""},
	}
	for _, tc := range cases {
		if got := c.resourceName(tc.kind, tc.in); got != tc.want {
			t.Fatalf("%s %q: expected %q, got %q", tc.kind, tc.in, tc.want, got)
		}
	}
}

func TestResourceNameWithoutProject(t *testing.T) {
	c := &Client{}
	if got := c.resourceName(kindTopic, "orders"); got != "" {
		t.Fatalf("expected empty name without project, got %q", got)
	}
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	if c.Publisher("orders") != nil || c.OrdersSubscription() != nil {
		t.Fatalf("nil client must hand out nil handles")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("closing nil client: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatalf("nil client must not report ready")
	}

	unconnected := &Client{}
	if unconnected.OrdersSubscription() != nil || unconnected.Subscription("orders-sub") != nil {
		t.Fatalf("unconnected client must hand out nil handles")
	}
}

func TestNonBlankSkipsEmpty(t *testing.T) {
	names := nonBlank("orders-sub", "  ", "", " billing ")
	if len(names) != 2 || names[0] != "orders-sub" || names[1] != "billing" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestDescribeLookup(t *testing.T) {
	if err := describeLookup("topic", "orders", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := describeLookup("topic", "orders", status.Error(codes.NotFound, "gone"))
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing topic error, got %v", err)
	}
	cause := status.Error(codes.PermissionDenied, "nope")
	if err := describeLookup("subscription", "s", cause); !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}
