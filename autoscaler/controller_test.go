package autoscaler

import (
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/google/go-cmp/cmp"
)

func testController() *Controller {
	return &Controller{
		cfg: Config{
			MinReplicas:    1,
			MaxReplicas:    10,
			UsersPerPod:    3,
			ScaleDownDelay: 60 * time.Second,
		},
		pendingScaleDown: make(map[string]time.Time),
	}
}

func TestDesiredReplicasMatchesSpecFormula(t *testing.T) {
	c := testController()

	cases := []struct {
		users int64
		want  int32
	}{
		{0, 1},
		{1, 1},
		{3, 1},
		{4, 2},
		{6, 2},
		{7, 3},
		{9, 3},
		{100, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.desiredReplicas(tc.users))
	}
}

func TestShouldScaleDownDebouncesByTransition(t *testing.T) {
	c := testController()

	assert.Equal(t, false, c.shouldScaleDown(4, 2))
	if diff := cmp.Diff(1, len(c.pendingScaleDown)); diff != "" {
		t.Fatalf("pendingScaleDown size mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, false, c.shouldScaleDown(4, 2))

	c.pendingScaleDown["4->2"] = time.Now().Add(-61 * time.Second)
	assert.Equal(t, true, c.shouldScaleDown(4, 2))
	assert.Equal(t, 0, len(c.pendingScaleDown))
}

func TestShouldScaleDownResetsOnDifferentTransition(t *testing.T) {
	c := testController()

	c.shouldScaleDown(5, 3)
	if _, ok := c.pendingScaleDown["5->3"]; !ok {
		t.Fatalf("expected pending entry for 5->3")
	}

	assert.Equal(t, false, c.shouldScaleDown(5, 2))
	if _, ok := c.pendingScaleDown["5->3"]; ok {
		t.Fatalf("stale transition 5->3 should not linger once a different desired value is observed")
	}
}
