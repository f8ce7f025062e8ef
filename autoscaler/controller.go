// Package autoscaler implements the Scaling Controller: a standalone
// process that reads the Coordinator's online-user cardinality and
// patches a Kubernetes Deployment's replica count to match. Grounded
// directly in original_source/autoscaler.py — same formula, same
// debounce-keyed-by-transition scale-down delay, same immediate
// scale-up — reimplemented against k8s.io/client-go instead of the
// Python `kubernetes` client and redis/go-redis/v9 instead of
// redis-py.
package autoscaler

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	appstyped "k8s.io/client-go/kubernetes/typed/apps/v1"
)

// Config holds the Scaling Controller's deployment and scaling
// settings. The Redis connection settings (REDIS_HOST, REDIS_PORT,
// REDIS_PASSWORD) are not part of it; autoscaler/main.go reads them
// when it dials the client passed to New.
type Config struct {
	Namespace      string
	DeploymentName string

	MinReplicas   int32
	MaxReplicas   int32
	UsersPerPod   int32
	CheckInterval time.Duration
	ScaleDownDelay time.Duration
}

// Controller is a single running instance of the scaling loop.
type Controller struct {
	cfg    Config
	redis  *redis.Client
	k8s    kubernetes.Interface
	deploy appstyped.DeploymentInterface

	// pendingScaleDown tracks when a (current->desired) scale-down
	// transition was first observed, keyed exactly like the Python
	// original's `last_scale_down_check` dict.
	pendingScaleDown map[string]time.Time
}

func deploymentsClient(k8s kubernetes.Interface, namespace string) appstyped.DeploymentInterface {
	return k8s.AppsV1().Deployments(namespace)
}

// New constructs a Controller. k8s and rdb are pre-dialed; see
// autoscaler/main.go for how they are constructed from the process
// environment.
func New(cfg Config, rdb *redis.Client, k8s kubernetes.Interface) *Controller {
	return &Controller{
		cfg:              cfg,
		redis:            rdb,
		k8s:              k8s,
		deploy:           deploymentsClient(k8s, cfg.Namespace),
		pendingScaleDown: make(map[string]time.Time),
	}
}

// Run blocks, ticking every cfg.CheckInterval, until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.tick(ctx); err != nil {
				log.Printf("autoscaler: tick: %v", err)
			}
		}
	}
}

// tick implements spec.md §4.6's six numbered steps exactly once.
func (c *Controller) tick(ctx context.Context) error {
	users, err := c.onlineUserCount(ctx)
	if err != nil {
		return fmt.Errorf("online user count: %w", err)
	}

	current, err := c.currentReplicas(ctx)
	if err != nil {
		return fmt.Errorf("current replicas: %w", err)
	}

	desired := c.desiredReplicas(users)

	switch {
	case desired == current:
		c.pendingScaleDown = make(map[string]time.Time)
		log.Printf("autoscaler: users=%d current=%d desired=%d no change", users, current, desired)

	case desired > current:
		c.pendingScaleDown = make(map[string]time.Time)
		log.Printf("autoscaler: users=%d current=%d desired=%d scaling up", users, current, desired)
		return c.scale(ctx, desired)

	default:
		if c.shouldScaleDown(current, desired) {
			log.Printf("autoscaler: users=%d current=%d desired=%d scaling down", users, current, desired)
			return c.scale(ctx, desired)
		}
		log.Printf("autoscaler: users=%d current=%d desired=%d scale-down pending", users, current, desired)
	}
	return nil
}

func (c *Controller) onlineUserCount(ctx context.Context) (int64, error) {
	return c.redis.SCard(ctx, "online_users").Result()
}

func (c *Controller) currentReplicas(ctx context.Context) (int32, error) {
	var d *appsv1.Deployment
	d, err := c.deploy.Get(ctx, c.cfg.DeploymentName, metav1.GetOptions{})
	if err != nil {
		return 0, err
	}
	if d.Spec.Replicas == nil {
		return 0, nil
	}
	return *d.Spec.Replicas, nil
}

// desiredReplicas applies spec.md §4.6 step 2's formula verbatim:
// ceil(users/usersPerPod) clamped to [min, max], with users==0 forced
// to min regardless of the formula.
func (c *Controller) desiredReplicas(users int64) int32 {
	if users == 0 {
		return c.cfg.MinReplicas
	}
	desired := int32(math.Ceil(float64(users) / float64(c.cfg.UsersPerPod)))
	if desired < c.cfg.MinReplicas {
		desired = c.cfg.MinReplicas
	}
	if desired > c.cfg.MaxReplicas {
		desired = c.cfg.MaxReplicas
	}
	return desired
}

// shouldScaleDown debounces a scale-down decision by the transition
// (current->desired), matching the Python original's dict-keyed timer:
// a change in either current or desired resets the clock.
func (c *Controller) shouldScaleDown(current, desired int32) bool {
	key := fmt.Sprintf("%d->%d", current, desired)
	first, seen := c.pendingScaleDown[key]
	now := time.Now()
	if !seen {
		c.pendingScaleDown = map[string]time.Time{key: now}
		return false
	}
	if now.Sub(first) < c.cfg.ScaleDownDelay {
		return false
	}
	delete(c.pendingScaleDown, key)
	return true
}

func (c *Controller) scale(ctx context.Context, replicas int32) error {
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	_, err := c.deploy.Patch(ctx, c.cfg.DeploymentName, types.MergePatchType, patch, metav1.PatchOptions{})
	return err
}
