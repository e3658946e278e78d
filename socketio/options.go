package socketio

import (
	"time"

	"github.com/go-socketio/engine/pkg/types"
)

// ServerOptionsInterface is the getter/setter surface ServerOptions
// implements, following the Raw/Set/Get triple the rest of this codebase
// uses so a caller can tell "explicitly configured" apart from "defaulted".
type ServerOptionsInterface interface {
	SetAsyncHandlers(bool)
	GetRawAsyncHandlers() types.Optional[bool]
	AsyncHandlers() bool

	SetAlwaysConnect(bool)
	GetRawAlwaysConnect() types.Optional[bool]
	AlwaysConnect() bool

	SetAckTimeout(time.Duration)
	GetRawAckTimeout() types.Optional[time.Duration]
	AckTimeout() time.Duration

	SetConnectTimeout(time.Duration)
	GetRawConnectTimeout() types.Optional[time.Duration]
	ConnectTimeout() time.Duration

	SetMaxConcurrentAsyncHandlers(int64)
	GetRawMaxConcurrentAsyncHandlers() types.Optional[int64]
	MaxConcurrentAsyncHandlers() int64

	SetManager(Manager)
	GetRawManager() types.Optional[Manager]
	ManagerOrDefault() Manager
}

// ServerOptions configures a Server. Every field defaults the way the
// reference implementation defaults it when left unset: handlers dispatch
// synchronously, always_connect is off, and a fresh in-memory Manager is
// created if none is supplied.
type ServerOptions struct {
	asyncHandlers              types.Optional[bool]
	alwaysConnect              types.Optional[bool]
	ackTimeout                 types.Optional[time.Duration]
	connectTimeout             types.Optional[time.Duration]
	maxConcurrentAsyncHandlers types.Optional[int64]
	manager                    types.Optional[Manager]
}

// DefaultServerOptions returns a ServerOptions with nothing explicitly set.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{}
}

func (o *ServerOptions) Assign(data ServerOptionsInterface) *ServerOptions {
	if data == nil {
		return o
	}
	if data.GetRawAsyncHandlers() != nil {
		o.SetAsyncHandlers(data.AsyncHandlers())
	}
	if data.GetRawAlwaysConnect() != nil {
		o.SetAlwaysConnect(data.AlwaysConnect())
	}
	if data.GetRawAckTimeout() != nil {
		o.SetAckTimeout(data.AckTimeout())
	}
	if data.GetRawConnectTimeout() != nil {
		o.SetConnectTimeout(data.ConnectTimeout())
	}
	if data.GetRawMaxConcurrentAsyncHandlers() != nil {
		o.SetMaxConcurrentAsyncHandlers(data.MaxConcurrentAsyncHandlers())
	}
	if data.GetRawManager() != nil {
		o.SetManager(data.ManagerOrDefault())
	}
	return o
}

func (o *ServerOptions) SetAsyncHandlers(v bool) { o.asyncHandlers = types.NewSome(v) }
func (o *ServerOptions) GetRawAsyncHandlers() types.Optional[bool] { return o.asyncHandlers }
func (o *ServerOptions) AsyncHandlers() bool {
	if o.asyncHandlers == nil {
		return false
	}
	return o.asyncHandlers.Get()
}

func (o *ServerOptions) SetAlwaysConnect(v bool) { o.alwaysConnect = types.NewSome(v) }
func (o *ServerOptions) GetRawAlwaysConnect() types.Optional[bool] { return o.alwaysConnect }
func (o *ServerOptions) AlwaysConnect() bool {
	if o.alwaysConnect == nil {
		return false
	}
	return o.alwaysConnect.Get()
}

func (o *ServerOptions) SetAckTimeout(v time.Duration) { o.ackTimeout = types.NewSome(v) }
func (o *ServerOptions) GetRawAckTimeout() types.Optional[time.Duration] { return o.ackTimeout }
func (o *ServerOptions) AckTimeout() time.Duration {
	if o.ackTimeout == nil {
		return 60 * time.Second
	}
	return o.ackTimeout.Get()
}

func (o *ServerOptions) SetConnectTimeout(v time.Duration) { o.connectTimeout = types.NewSome(v) }
func (o *ServerOptions) GetRawConnectTimeout() types.Optional[time.Duration] { return o.connectTimeout }
func (o *ServerOptions) ConnectTimeout() time.Duration {
	if o.connectTimeout == nil {
		return 5 * time.Second
	}
	return o.connectTimeout.Get()
}

func (o *ServerOptions) SetMaxConcurrentAsyncHandlers(v int64) {
	o.maxConcurrentAsyncHandlers = types.NewSome(v)
}
func (o *ServerOptions) GetRawMaxConcurrentAsyncHandlers() types.Optional[int64] {
	return o.maxConcurrentAsyncHandlers
}
func (o *ServerOptions) MaxConcurrentAsyncHandlers() int64 {
	if o.maxConcurrentAsyncHandlers == nil {
		return 0 // 0 means unbounded
	}
	return o.maxConcurrentAsyncHandlers.Get()
}

func (o *ServerOptions) SetManager(m Manager) { o.manager = types.NewSome(m) }
func (o *ServerOptions) GetRawManager() types.Optional[Manager] { return o.manager }
func (o *ServerOptions) ManagerOrDefault() Manager {
	if o.manager == nil {
		return NewManager()
	}
	return o.manager.Get()
}
