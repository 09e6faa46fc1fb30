// 本地RPC服务器：在单个HTTP监听地址上挂载connect服务，使用JSON编解码
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "rpc")

// codec connect的JSON编解码器，直接作用于普通Go结构体
type codec struct{}

func (codec) Name() string                   { return "json" }
func (codec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (codec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Codec 服务端与客户端共用的编解码器
func Codec() connect.Codec {
	return codec{}
}

// NewClient 创建指向baseURL上某个procedure的一元调用客户端
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](httpClient, baseURL+procedure, connect.WithCodec(codec{}))
}

// Server RPC服务器
// 功能：登记各模块的connect服务并在Serve时统一监听
// 说明：Register传入的工厂函数会收到统一的HandlerOption（编解码器等）
type Server struct {
	addr     string
	mux      *http.ServeMux
	srv      *http.Server
	services []string
	closed   bool
	mtx      sync.Mutex
}

// New 创建RPC服务器，addr为空时Serve直接返回
func New(addr string) *Server {
	return &Server{
		addr: addr,
		mux:  http.NewServeMux(),
	}
}

// Register 注册connect服务
// 参数：name-服务名，fn-根据HandlerOption生成路由前缀与处理器的工厂函数
func (s *Server) Register(
	name string,
	fn func(opts ...connect.HandlerOption) (pattern string, handler http.Handler),
) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	pattern, handler := fn(connect.WithCodec(codec{}))
	s.mux.Handle(pattern, handler)
	s.services = append(s.services, name)
	log.Debugf("register service %s at %s", name, pattern)
}

// Handle 挂载普通HTTP处理器（如websocket）
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.mux.Handle(pattern, handler)
}

// Handler 返回已挂载所有服务的处理器，便于httptest使用
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Services 已注册的服务名
func (s *Server) Services() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]string(nil), s.services...)
}

// Serve 启动监听并阻塞直到Close
func (s *Server) Serve() error {
	if s.addr == "" {
		log.Info("rpc server disabled")
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return ln.Close()
	}
	s.srv = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	srv := s.srv
	s.mtx.Unlock()
	log.Infof("rpc server listening at %s with services %v", ln.Addr(), s.Services())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close 优雅关闭服务器
func (s *Server) Close() error {
	s.mtx.Lock()
	s.closed = true
	srv := s.srv
	s.mtx.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
