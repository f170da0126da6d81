package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/nickyhof/TenantDB/config"
	"github.com/nickyhof/TenantDB/db"
	"github.com/nickyhof/TenantDB/logging"
)

// maxLine bounds the size of one request line.
const maxLine = 4 << 20

// Server is a TCP server that exposes a request dispatcher.
type Server struct {
	listener   net.Listener
	dispatcher *db.Dispatcher
	authConfig *config.AuthConfig
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server for dispatcher. A nil or disabled authConfig
// accepts every client.
func NewServer(dispatcher *db.Dispatcher, authConfig *config.AuthConfig) *Server {
	if authConfig != nil && !authConfig.Enabled {
		authConfig = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		dispatcher: dispatcher,
		authConfig: authConfig,
		log:        logging.WithComponent("server"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	s.log.Info("Server listening", slog.String("addr", listener.Addr().String()),
		slog.Bool("auth", s.authConfig != nil))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, cancels running requests and waits for every
// connection to finish.
func (s *Server) Stop() error {
	s.cancel()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Warn("Accept failed", slog.Any("error", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the reader when the server stops.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	log := s.log.With(slog.String("remote", conn.RemoteAddr().String()))
	log.Info("Client connected")
	defer log.Info("Client disconnected")

	state := &ConnectionState{}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return
		}

		var resp Response
		if isAuthCommand(line) {
			resp = s.handleAuth(line, state)
			if !resp.Success {
				log.Warn("Authentication failed", slog.String("error", resp.Error))
			}
		} else {
			resp = s.handleRequest(line, state)
			if !resp.Success {
				log.Warn("Request failed", slog.String("kind", resp.Kind), slog.String("error", resp.Error))
			}
		}

		data, err := EncodeResponse(resp)
		if err != nil {
			log.Error("Failed to encode response", slog.Any("error", err))
			continue
		}
		if _, err := conn.Write(data); err != nil {
			log.Warn("Write failed", slog.Any("error", err))
			return
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF && s.ctx.Err() == nil {
		log.Warn("Read failed", slog.Any("error", err))
	}
}

func (s *Server) handleRequest(line string, state *ConnectionState) Response {
	req, err := DecodeRequest([]byte(line))
	if err != nil {
		return Response{Success: false, Type: TypeResult, Kind: db.KindBadRequest, Error: fmt.Sprintf("invalid request: %v", err)}
	}

	if s.authConfig != nil {
		if !state.IsAuthenticated() {
			return Response{Success: false, Type: TypeResult, Kind: KindUnauthorized, Error: "authentication required"}
		}
		tenant := s.dispatcher.SchemaFor(req.Tenant).DBName
		if !state.Identity().Allows(tenant) {
			return Response{Success: false, Type: TypeResult, Kind: KindUnauthorized,
				Error: fmt.Sprintf("tenant %s is not granted to %s", tenant, state.Identity().Subject)}
		}
	}

	return fromResult(s.dispatcher.Execute(s.ctx, req))
}
