// Command autoscaler runs the Scaling Controller as a standalone
// process (spec.md §4.6, component C6).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/riverline-chat/riverline/autoscaler"
)

func main() {
	cfg := autoscaler.Config{
		Namespace:      envOr("NAMESPACE", "chat-app"),
		DeploymentName: envOr("DEPLOYMENT_NAME", "chat-server"),
		MinReplicas:    int32(envIntOr("MIN_REPLICAS", 1)),
		MaxReplicas:    int32(envIntOr("MAX_REPLICAS", 10)),
		UsersPerPod:    int32(envIntOr("USERS_PER_POD", 3)),
		CheckInterval:  time.Duration(envIntOr("CHECK_INTERVAL", 10)) * time.Second,
		ScaleDownDelay: time.Duration(envIntOr("SCALE_DOWN_DELAY", 60)) * time.Second,
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         envOr("REDIS_HOST", "localhost") + ":" + envOr("REDIS_PORT", "6379"),
		Password:     os.Getenv("REDIS_PASSWORD"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
	})
	defer rdb.Close()

	k8s, err := newKubernetesClient()
	if err != nil {
		log.Fatalf("autoscaler: kubernetes client: %v", err)
	}

	log.Printf("autoscaler: namespace=%s deployment=%s min=%d max=%d usersPerPod=%d interval=%s scaleDownDelay=%s",
		cfg.Namespace, cfg.DeploymentName, cfg.MinReplicas, cfg.MaxReplicas, cfg.UsersPerPod, cfg.CheckInterval, cfg.ScaleDownDelay)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("autoscaler: signal received, shutting down")
		cancel()
	}()

	autoscaler.New(cfg, rdb, k8s).Run(ctx)
}

// newKubernetesClient tries in-cluster config first, the same fallback
// order as original_source/autoscaler.py's config.load_incluster_config
// / config.load_kube_config pair.
func newKubernetesClient() (*kubernetes.Clientset, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			kubeconfig = os.Getenv("HOME") + "/.kube/config"
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, err
		}
		log.Printf("autoscaler: using local kubeconfig %s", kubeconfig)
	} else {
		log.Printf("autoscaler: using in-cluster config")
	}
	return kubernetes.NewForConfig(restCfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
