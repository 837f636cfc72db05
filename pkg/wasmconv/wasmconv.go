// Package wasmconv hosts converter.Converter implementations compiled to
// WebAssembly, using wazero as the runtime. It lets a converter's transform
// logic ship as a sandboxed .wasm binary instead of linked Go code — useful
// for converters written in other languages, or ones that need to run
// untrusted.
package wasmconv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/rhizome-lab/transmute/pkg/converter"
	"github.com/rhizome-lab/transmute/pkg/properties"
)

// envelope is the JSON shape exchanged across the WASM boundary in both
// directions: data as a byte payload (base64 via encoding/json's []byte
// handling) plus its accompanying properties.
type envelope struct {
	Data  []byte                `json:"data"`
	Props properties.Properties `json:"props"`
}

// Converter hosts one WASM module exporting a "convert" entry point,
// presenting it as a converter.Converter. Only the single-input/
// single-output shape is supported: ConvertMulti and ConvertBatch reject
// via the embedded converter.Unsupported, since a WASM module would need
// to export additional entry points to support them and none of the
// modules this package targets do yet.
type Converter struct {
	converter.Unsupported

	decl    converter.ConverterDecl
	runtime wazero.Runtime
	module  api.Module

	memory    api.Memory
	malloc    api.Function
	free      api.Function
	convertFn api.Function

	timeout time.Duration
}

// Config controls how a WASM module is instantiated.
type Config struct {
	// Timeout bounds every Convert call. Zero means 30 seconds.
	Timeout time.Duration

	// MemoryLimitPages caps the module's linear memory, 64KiB per page.
	// Zero means 256 pages (16MiB), matching
	// host.WASMHostConfig.MemoryLimitPages's default.
	MemoryLimitPages uint32
}

// New compiles and instantiates wasmBytes and wraps it as a
// converter.Converter declared by decl. The module must export linear
// memory plus "malloc", "free", and "convert" functions; "convert" must
// have the signature func(ptr, len uint32) (packed uint64) where packed is
// (output_ptr << 32) | output_len, matching
// pkg/providers/host/bridge.go's callWASMFunction convention.
func New(ctx context.Context, decl converter.ConverterDecl, wasmBytes []byte, cfg Config) (*Converter, error) {
	if decl.ID == "" {
		return nil, fmt.Errorf("wasmconv: converter declaration must have an ID")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MemoryLimitPages == 0 {
		cfg.MemoryLimitPages = 256
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("wasmconv: instantiate WASI: %w", err)
	}

	module, err := runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("wasmconv: instantiate module for %s: %w", decl.ID, err)
	}

	c := &Converter{decl: decl, runtime: runtime, module: module, timeout: cfg.Timeout}

	c.memory = module.Memory()
	if c.memory == nil {
		c.Close(ctx)
		return nil, fmt.Errorf("wasmconv: module %s does not export memory", decl.ID)
	}
	c.malloc = module.ExportedFunction("malloc")
	if c.malloc == nil {
		c.Close(ctx)
		return nil, fmt.Errorf("wasmconv: module %s does not export malloc", decl.ID)
	}
	c.free = module.ExportedFunction("free")
	if c.free == nil {
		c.Close(ctx)
		return nil, fmt.Errorf("wasmconv: module %s does not export free", decl.ID)
	}
	c.convertFn = module.ExportedFunction("convert")
	if c.convertFn == nil {
		c.Close(ctx)
		return nil, fmt.Errorf("wasmconv: module %s does not export convert", decl.ID)
	}

	return c, nil
}

// Decl returns the converter declaration supplied to New.
func (c *Converter) Decl() converter.ConverterDecl { return c.decl }

// Convert marshals input/props into the wire envelope, invokes the WASM
// module's convert export, and unmarshals the result.
func (c *Converter) Convert(ctx context.Context, input []byte, props properties.Properties) (converter.ConvertOutput, error) {
	reqJSON, err := json.Marshal(envelope{Data: input, Props: props})
	if err != nil {
		return converter.ConvertOutput{}, converter.NewInvalidInputError(fmt.Sprintf("encode request: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respJSON, err := c.call(ctx, reqJSON)
	if err != nil {
		return converter.ConvertOutput{}, converter.NewFailedError("wasm convert call", err)
	}

	var resp envelope
	if err := json.Unmarshal(respJSON, &resp); err != nil {
		return converter.ConvertOutput{}, converter.NewInvalidInputError(fmt.Sprintf("decode response: %v", err))
	}

	return converter.NewSingleOutput(resp.Data, resp.Props), nil
}

// call implements the malloc/write/invoke/read/free round-trip described
// in pkg/providers/host/bridge.go's callWASMFunction.
func (c *Converter) call(ctx context.Context, input []byte) ([]byte, error) {
	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := c.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, fmt.Errorf("allocate input: %w", err)
		}
		defer c.deallocate(ctx, ptr)

		if !c.memory.Write(ptr, input) {
			return nil, fmt.Errorf("write input to module memory")
		}
		inputPtr, inputLen = ptr, uint32(len(input))
	}

	results, err := c.convertFn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("convert call: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("convert returned no results")
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return []byte(`{"data":null,"props":{}}`), nil
	}

	output, ok := c.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("read output from module memory")
	}
	// Copy out before freeing: the backing array is the module's linear
	// memory, which deallocate's call may reuse.
	out := append([]byte(nil), output...)
	c.deallocate(ctx, outputPtr)

	return out, nil
}

func (c *Converter) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := c.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no results")
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return ptr, nil
}

func (c *Converter) deallocate(ctx context.Context, ptr uint32) {
	_, _ = c.free.Call(ctx, uint64(ptr))
}

// Close releases the module and its runtime.
func (c *Converter) Close(ctx context.Context) error {
	if c.module != nil {
		if err := c.module.Close(ctx); err != nil {
			return fmt.Errorf("wasmconv: close module: %w", err)
		}
	}
	if c.runtime != nil {
		if err := c.runtime.Close(ctx); err != nil {
			return fmt.Errorf("wasmconv: close runtime: %w", err)
		}
	}
	return nil
}
