//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"go.uber.org/zap"

	"github.com/kittclouds/barswitch/internal/config"
	"github.com/kittclouds/barswitch/internal/logging"
	"github.com/kittclouds/barswitch/pkg/chromestore"
	"github.com/kittclouds/barswitch/pkg/response"
	"github.com/kittclouds/barswitch/pkg/switcher"
)

// Version info
const Version = "1.2.0"

// Global state
var (
	logger *zap.Logger

	initMu    sync.Mutex
	mu        sync.Mutex
	svc       *switcher.Service
	initErr   error
	ready     = make(chan struct{})
	readyOnce sync.Once
)

func main() {
	var err error
	logger, err = logging.New(config.LoggingConfig{Level: "info", Format: "console"}, false)
	if err != nil {
		fmt.Println("[BarSwitch] FATAL: logger:", err.Error())
		return
	}

	js.Global().Set("BarSwitch", js.ValueOf(map[string]interface{}{
		"version":          js.FuncOf(getVersion),
		"initialize":       js.FuncOf(initialize),
		"listCollections":  js.FuncOf(listCollections),
		"select":           js.FuncOf(selectCollection),
		"createCollection": js.FuncOf(createCollection),
	}))
	logger.Info("wasm ready", zap.String("version", Version))

	select {}
}

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize binds to chrome.bookmarks, bootstraps the layout and starts
// reconciling. Calls made before it resolves wait for it.
// Args: [optionsJSON string] - optional {rootTitle, defaultName, moveConcurrency}
// Returns: Promise<collections JSON>
func initialize(this js.Value, args []js.Value) interface{} {
	opts := switcher.DefaultOptions()
	if len(args) > 0 && args[0].Type() == js.TypeString && args[0].String() != "" {
		var in struct {
			RootTitle       string `json:"rootTitle"`
			DefaultName     string `json:"defaultName"`
			MoveConcurrency int    `json:"moveConcurrency"`
		}
		if err := json.Unmarshal([]byte(args[0].String()), &in); err != nil {
			return errorResult("initialize: invalid options: " + err.Error())
		}
		if in.RootTitle != "" {
			opts.RootTitle = in.RootTitle
		}
		if in.DefaultName != "" {
			opts.DefaultName = in.DefaultName
		}
		if in.MoveConcurrency > 0 {
			opts.MoveConcurrency = in.MoveConcurrency
		}
	}
	opts.Logger = logger

	promise, resolve, reject := makePromise()
	go func() {
		initMu.Lock()
		defer initMu.Unlock()

		mu.Lock()
		running := svc != nil
		mu.Unlock()
		if running {
			resolveSnapshot(context.Background(), resolve, reject)
			return
		}
		st, err := chromestore.New()
		if err != nil {
			finishInit(err)
			reject.Invoke(errorResult(err.Error()))
			return
		}
		s := switcher.New(st, opts)
		snap, err := s.Bootstrap(context.Background())
		if err != nil {
			finishInit(err)
			reject.Invoke(errorResult(err.Error()))
			return
		}
		mu.Lock()
		svc = s
		mu.Unlock()
		finishInit(nil)

		go func() {
			if err := s.Run(context.Background()); err != nil {
				logger.Error("reconciler stopped", zap.Error(err))
			}
		}()

		data, err := response.MarshalCollections(snap)
		if err != nil {
			reject.Invoke(errorResult(err.Error()))
			return
		}
		resolve.Invoke(string(data))
	}()
	return promise
}

func finishInit(err error) {
	mu.Lock()
	initErr = err
	mu.Unlock()
	readyOnce.Do(func() { close(ready) })
}

// service waits for the first initialize attempt to finish.
func service() (*switcher.Service, error) {
	<-ready
	mu.Lock()
	defer mu.Unlock()
	if svc != nil {
		return svc, nil
	}
	if initErr != nil {
		return nil, initErr
	}
	return nil, errors.New("not initialized")
}

// listCollections returns Promise<{"bars": [...], "current": "..."}>
func listCollections(this js.Value, args []js.Value) interface{} {
	promise, resolve, reject := makePromise()
	go resolveSnapshot(context.Background(), resolve, reject)
	return promise
}

func resolveSnapshot(ctx context.Context, resolve, reject js.Value) {
	s, err := service()
	if err != nil {
		reject.Invoke(errorResult(err.Error()))
		return
	}
	snap, err := s.ListCollections(ctx)
	if err != nil {
		reject.Invoke(result(err))
		return
	}
	data, err := response.MarshalCollections(snap)
	if err != nil {
		reject.Invoke(errorResult(err.Error()))
		return
	}
	resolve.Invoke(string(data))
}

// selectCollection: [name string] -> Promise<result JSON>
func selectCollection(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("select requires 1 arg: name")
	}
	name := args[0].String()
	return runOp("select", func(ctx context.Context, s *switcher.Service) error {
		return s.Select(ctx, name)
	})
}

// createCollection: [name string] -> Promise<result JSON>
// Validation failures resolve with success=false and the reason.
func createCollection(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("createCollection requires 1 arg: name")
	}
	name := args[0].String()
	return runOp("createCollection", func(ctx context.Context, s *switcher.Service) error {
		return s.CreateCollection(ctx, name)
	})
}

func runOp(op string, fn func(context.Context, *switcher.Service) error) js.Value {
	promise, resolve, _ := makePromise()
	go func() {
		s, err := service()
		if err == nil {
			err = fn(context.Background(), s)
		}
		if err != nil {
			logger.Warn(op+" failed", zap.Error(err))
		}
		resolve.Invoke(result(err))
	}()
	return promise
}

func result(err error) string {
	data, mErr := response.MarshalResult(err)
	if mErr != nil {
		return errorResult(mErr.Error()).(string)
	}
	return string(data)
}

// Helper: Create error result
func errorResult(msg string) interface{} {
	jsonBytes, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   msg,
	})
	return string(jsonBytes)
}

// makePromise creates a JS Promise and returns it with its resolve and
// reject functions.
func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}
