// Copyright (C) 2025 koi-net
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package lifecycle assembles every other package into one running
// node and carries out its ordered start/stop sequence. New loads the
// config-selected identity key and builds the components; Start then
// regenerates the graph, re-ingests the node's own profile, drains the
// inbound queue on the calling goroutine, and only after that starts
// the workers, poller and server, then either catches up with known
// providers or handshakes a configured first contact. The workers are
// not running during graph regeneration, self ingestion or the drain.
package lifecycle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koi-net/koi-net/cache"
	"github.com/koi-net/koi-net/config"
	"github.com/koi-net/koi-net/graph"
	"github.com/koi-net/koi-net/health"
	"github.com/koi-net/koi-net/identity"
	"github.com/koi-net/koi-net/internal/logger"
	"github.com/koi-net/koi-net/koi"
	"github.com/koi-net/koi-net/pipeline"
	"github.com/koi-net/koi-net/poller"
	"github.com/koi-net/koi-net/queue"
	"github.com/koi-net/koi-net/rid"
	"github.com/koi-net/koi-net/rpc"
	"github.com/koi-net/koi-net/server"
	syncpkg "github.com/koi-net/koi-net/sync"
	"github.com/koi-net/koi-net/worker"
)

// Node owns every long-lived component of a single running koi-net
// peer and their start/stop ordering.
type Node struct {
	Config  *config.Config
	KeyPair *identity.KeyPair
	SelfRID rid.RID

	Cache      cache.Cache
	Graph      *graph.NetworkGraph
	KobjQueue  *queue.KobjQueue
	EventQueue *queue.EventQueue
	PollBuffer *queue.PollEventBuffer

	Registry *pipeline.Registry
	Pipeline *pipeline.Pipeline
	Env      *pipeline.Env

	Request    *rpc.RequestHandler
	Response   *rpc.ResponseHandler
	Handshaker *syncpkg.Handshaker
	SyncMgr    *syncpkg.SyncManager

	KobjWorker  *worker.KobjWorker
	EventWorker *worker.EventWorker
	Poller      *poller.Loop
	Server      *server.Server

	Health *health.HealthChecker
	Logger logger.Logger

	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New loads identity and builds every component wired together, but
// does not yet start any goroutine or touch the network. Call Start to
// run the ordered bring-up sequence.
func New(cfg *config.Config, log logger.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle: invalid config: %w", err)
	}
	if cfg.Cache == nil {
		cfg.Cache = &config.CacheConfig{Type: "file", Path: ".koi/cache"}
	}
	if cfg.KeyStore == nil {
		cfg.KeyStore = &config.KeyStoreConfig{PrivateKeyFile: ".koi/identity.pem"}
	}

	var passphrase []byte
	if cfg.KeyStore.PassphraseEnv != "" {
		passphrase = []byte(os.Getenv(cfg.KeyStore.PassphraseEnv))
	}
	kp, err := identity.LoadOrGenerate(cfg.KeyStore.PrivateKeyFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load identity: %w", err)
	}
	selfRID := kp.NodeRID()

	c, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	g := graph.New()

	kobjQueue := queue.NewKobjQueue(256)
	eventQueue := queue.NewEventQueue(queue.DefaultFailureThreshold)
	pollBuffer := queue.NewPollEventBuffer()

	registry := pipeline.NewRegistry()
	pipeline.RegisterBuiltins(registry)

	reqHandler := rpc.NewRequestHandler(kp, c, selfRID)
	if cfg.FirstContact != nil && cfg.FirstContact.RID != "" {
		fcRID, err := rid.Parse(cfg.FirstContact.RID)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: parse first_contact.rid: %w", err)
		}
		reqHandler.FirstContact = fcRID
		reqHandler.FirstContactURL = cfg.FirstContact.URL
	}

	respHandler := &rpc.ResponseHandler{
		KeyPair:    kp,
		Cache:      c,
		SelfRID:    selfRID,
		KobjQueue:  kobjQueue,
		PollBuffer: pollBuffer,
	}

	handshaker := &syncpkg.Handshaker{RPC: reqHandler, Cache: c, SelfRID: selfRID, Logger: log}
	syncMgr := &syncpkg.SyncManager{RPC: reqHandler, Graph: g, SelfRID: selfRID, Logger: log}

	env := &pipeline.Env{
		Cache:      c,
		Graph:      g,
		SelfRID:    selfRID,
		Fetcher:    reqHandler,
		EventQueue: eventQueue,
		PollBuffer: pollBuffer,
		Logger:     log,
		Handshake:  handshaker.Handshake,
		CatchUp:    syncMgr.CatchUp,
	}
	// Every submission, whether from a handler's re-entrant KO or from
	// lifecycle's own bootstrap, goes through the queue (spec.md §5).
	// KobjWorker drives the pipeline from it, except that Start's
	// bring-up drain calls Process on its own goroutine before
	// KobjWorker is started.
	env.Submit = func(ko *koi.KnowledgeObject) { kobjQueue.Put(ko) }
	p := pipeline.New(registry, env)
	syncMgr.Submit = env.Submit

	kobjWorker := &worker.KobjWorker{Queue: kobjQueue, Pipeline: p, Logger: log}
	eventWorker := &worker.EventWorker{
		Queue:     eventQueue,
		RPC:       reqHandler,
		Logger:    log,
		Handshake: handshaker.Handshake,
	}

	checker := health.NewHealthChecker(5 * time.Second)
	if log != nil {
		checker.SetLogger(log)
	}
	checker.RegisterCheck("cache", health.CacheHealthCheck(c.ListAll))
	checker.RegisterCheck("kobj_worker", health.WorkerLivenessCheck(kobjWorker.LastActive, kobjWorkerLivenessWindow))
	checker.RegisterCheck("event_worker", health.WorkerLivenessCheck(eventWorker.LastActive, eventWorkerLivenessWindow))
	checker.RegisterCheck("edge_cycles", health.GraphCycleCheck(func() [][]rid.RID {
		return g.FindCycles(rid.TypeKoiNetEdge)
	}))

	n := &Node{
		Config:      cfg,
		KeyPair:     kp,
		SelfRID:     selfRID,
		Cache:       c,
		Graph:       g,
		KobjQueue:   kobjQueue,
		EventQueue:  eventQueue,
		PollBuffer:  pollBuffer,
		Registry:    registry,
		Pipeline:    p,
		Env:         env,
		Request:     reqHandler,
		Response:    respHandler,
		Handshaker:  handshaker,
		SyncMgr:     syncMgr,
		KobjWorker:  kobjWorker,
		EventWorker: eventWorker,
		Health:      checker,
		Logger:      log,
	}

	switch cfg.Node.Type {
	case "PARTIAL":
		n.Poller = &poller.Loop{
			RPC:     reqHandler,
			Graph:   g,
			SelfRID: selfRID,
			Queue:   kobjQueue,
			Logger:  log,
		}
	default:
		clockSkew := time.Duration(0)
		if cfg.Secure != nil {
			clockSkew = cfg.Secure.ClockSkew
		}
		n.Server = server.New(respHandler, clockSkew, log, checker)
	}
	return n, nil
}

// kobjWorkerLivenessWindow is generous because KobjWorker blocks on an
// empty queue indefinitely between KOs: a quiet node is not a dead one.
// eventWorkerLivenessWindow can be tight because EventWorker ticks on a
// fixed interval regardless of whether any peer has pending events.
const (
	kobjWorkerLivenessWindow  = 5 * time.Minute
	eventWorkerLivenessWindow = 5 * time.Second
)

func buildCache(cfg *config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "", "file":
		c, err := cache.NewFileCache(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: open file cache: %w", err)
		}
		return c, nil
	case "memory":
		return cache.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("lifecycle: unknown cache.type %q", cfg.Type)
	}
}

// Start runs the ordered bring-up sequence of §4.7 and returns once the
// node is fully caught up (or handshaked) and ready to serve.
func (n *Node) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if err := n.Graph.Rebuild(n.Cache); err != nil {
		return fmt.Errorf("lifecycle: initial graph rebuild: %w", err)
	}

	if err := n.ingestSelfProfile(); err != nil {
		return fmt.Errorf("lifecycle: ingest self profile: %w", err)
	}

	// Drain anything already queued before KobjWorker starts consuming,
	// so bring-up never races its own goroutine for the same items.
	n.drainKobjQueue()

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.KobjWorker.Run(runCtx)
	}()
	go func() {
		defer n.wg.Done()
		n.EventWorker.Run(runCtx)
	}()
	if n.Poller != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.Poller.Run(runCtx)
		}()
	}
	if n.Server != nil && n.Config.Server != nil && n.Config.Server.ListenAddr != "" {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.Server.ListenAndServe(runCtx, n.Config.Server.ListenAddr); err != nil && n.Logger != nil {
				n.Logger.Error("http server exited", logger.Error(err))
			}
		}()
	}

	n.bootstrap()

	if n.Logger != nil {
		n.Logger.Info("node started", logger.String("rid", n.SelfRID.String()))
	}
	return nil
}

// ingestSelfProfile builds this node's own NodeProfile from config and
// submits it as an internally-produced KO, so any config change (a new
// base_url, a new provides set) propagates as an UPDATE the same way
// any other profile change would.
func (n *Node) ingestSelfProfile() error {
	der, err := n.KeyPair.PublicKeyDER()
	if err != nil {
		return err
	}

	profile := koi.NodeProfile{
		BaseURL:      n.Config.Node.BaseURL,
		NodeType:     koi.NodeType(n.Config.Node.Type),
		PublicKeyDER: encodeDER(der),
		Provides: koi.Provides{
			Event: toRIDTypes(n.Config.Node.Provides.Event),
			State: toRIDTypes(n.Config.Node.Provides.State),
		},
	}
	contents, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	bundle, err := koi.NewBundle(koi.Manifest{RID: n.SelfRID, Timestamp: time.Now()}, contents)
	if err != nil {
		return err
	}
	ko := koi.NewKnowledgeObject(koi.Event{RID: n.SelfRID, Type: koi.EventUpdate, Bundle: &bundle}, koi.SourceInternal, nil)
	n.Env.Submit(ko)
	return nil
}

// drainKobjQueue processes every KO already queued (e.g. the self
// profile ingestion just submitted) before bring-up continues, without
// blocking on an empty queue: the KobjWorker goroutine owns blocking
// consumption from here on.
func (n *Node) drainKobjQueue() {
	for {
		ko, ok := n.KobjQueue.TryGet()
		if !ok {
			return
		}
		n.Pipeline.Process(ko)
	}
}

// bootstrap implements the final step of §4.7: catch up with any known
// KoiNetNode state provider, or handshake a configured first contact.
// Providers are caught up with concurrently: each is an independent
// remote fetch feeding the same thread-safe KobjQueue, so there is no
// ordering requirement across providers.
func (n *Node) bootstrap() {
	providers := n.Graph.GetStateProviders(rid.TypeKoiNetNode)

	var g errgroup.Group
	var caughtUp atomic.Bool
	for _, provider := range providers {
		if provider == n.SelfRID {
			continue
		}
		provider := provider
		g.Go(func() error {
			if err := n.SyncMgr.CatchUp(provider); err != nil {
				if n.Logger != nil {
					n.Logger.Warn("catch-up failed", logger.String("provider", provider.String()), logger.Error(err))
				}
				return nil
			}
			caughtUp.Store(true)
			return nil
		})
	}
	_ = g.Wait()

	if caughtUp.Load() {
		return
	}

	fc := n.Request.FirstContact
	if fc == (rid.RID{}) {
		return
	}
	if err := n.Handshaker.Handshake(fc); err != nil && n.Logger != nil {
		n.Logger.Warn("first-contact handshake failed", logger.String("target", fc.String()), logger.Error(err))
	}
}

// Stop cancels both worker goroutines' context and waits for them to
// join; any bundle write already in flight on KobjWorker completes
// before Stop returns, since Run only checks ctx.Done() between items.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		n.wg.Wait()
		if n.Logger != nil {
			n.Logger.Info("node stopped", logger.String("rid", n.SelfRID.String()))
		}
	})
}

func encodeDER(der []byte) string {
	return base64.RawURLEncoding.EncodeToString(der)
}

func toRIDTypes(ss []string) []rid.Type {
	if ss == nil {
		return nil
	}
	out := make([]rid.Type, len(ss))
	for i, s := range ss {
		out[i] = rid.Type(s)
	}
	return out
}
