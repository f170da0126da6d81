// Package main builds TenantDB as a C shared library.
//
// A handle is opened from a TOML config file (TENANTDB_* environment
// variables apply as usual). Requests and responses are the JSON documents
// of the line protocol, one per call. Every returned string must be
// released with tenantdb_free.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/nickyhof/TenantDB"
	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	handlesMu  sync.Mutex
	handles    = make(map[int]*TenantDB.Instance)
	nextHandle = 1
	lastError  string
)

// openInstance loads the config the way the command-line tools do, with
// path standing in for --config.
func openInstance(path string) (*TenantDB.Instance, error) {
	cfg := config.Default()
	fs := pflag.NewFlagSet("tenantdb", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	if path != "" {
		if err := fs.Set("config", path); err != nil {
			return nil, err
		}
	}
	if err := config.Load(viper.New(), fs); err != nil {
		return nil, err
	}
	return TenantDB.Open(context.Background(), cfg)
}

//export tenantdb_open
func tenantdb_open(path *C.char) C.int {
	inst, err := openInstance(C.GoString(path))

	handlesMu.Lock()
	defer handlesMu.Unlock()
	if err != nil {
		lastError = err.Error()
		logging.GetLogger().Error("Failed to open instance", slog.Any("error", err))
		return -1
	}
	handle := nextHandle
	nextHandle++
	handles[handle] = inst
	return C.int(handle)
}

// tenantdb_last_error describes the most recent failed tenantdb_open.
//
//export tenantdb_last_error
func tenantdb_last_error() *C.char {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	return C.CString(lastError)
}

//export tenantdb_close
func tenantdb_close(handle C.int) C.int {
	handlesMu.Lock()
	inst, ok := handles[int(handle)]
	delete(handles, int(handle))
	handlesMu.Unlock()

	if !ok {
		return -1
	}
	if err := inst.Close(); err != nil {
		logging.GetLogger().Warn("Failed to close instance", slog.Any("error", err))
		return -1
	}
	return 0
}

//export tenantdb_execute
func tenantdb_execute(handle C.int, request *C.char) *C.char {
	handlesMu.Lock()
	inst, ok := handles[int(handle)]
	handlesMu.Unlock()
	if !ok {
		return makeResponse(db.Response{Kind: db.KindBadRequest, Error: "invalid handle"})
	}

	var req db.Request
	if err := json.Unmarshal([]byte(C.GoString(request)), &req); err != nil {
		return makeResponse(db.Response{Kind: db.KindBadRequest, Error: "invalid request: " + err.Error()})
	}
	return makeResponse(inst.Dispatcher.Execute(context.Background(), req))
}

//export tenantdb_free
func tenantdb_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func makeResponse(resp db.Response) *C.char {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(db.ErrorResponse(err))
	}
	return C.CString(string(data))
}

func main() {}
