package rpc

import (
	"errors"
	"io"
	"net"
	"net/rpc"

	"github.com/wfunc/liarsbar/logger"
	"github.com/wfunc/liarsbar/models"
	"github.com/wfunc/liarsbar/services"
)

// Server manages the admin RPC listener. Services are registered on a private
// rpc.Server, not the package default.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr. Register services before calling Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      rpc.NewServer(),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.address
}

// Register publishes rcvr's exported methods.
func (s *Server) Register(rcvr interface{}) error {
	return s.rpc.Register(rcvr)
}

// ServeConn serves a single connection until the client hangs up.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	s.rpc.ServeConn(conn)
}

// Start accepts connections until Stop is called.
func (s *Server) Start() error {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			return err
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes room administration over net/rpc. Method signatures
// follow net/rpc: exported args, pointer reply, error result.
type AdminService struct {
	games *services.GameService
}

func NewAdminService(games *services.GameService) *AdminService {
	return &AdminService{games: games}
}

// ListRoomsArgs filters by phase; an empty Phase lists every room.
type ListRoomsArgs struct {
	Phase models.Phase
}

type ListRoomsReply struct {
	Rooms []models.RoomSummary
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, r := range a.games.ListRooms() {
		if args.Phase == "" || r.Phase == args.Phase {
			reply.Rooms = append(reply.Rooms, r)
		}
	}
	return nil
}

type GetRoomArgs struct {
	RoomID string
}

type GetRoomReply struct {
	Room models.RoomView
}

// GetRoom returns the public view of a room.
func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, err := a.games.GetRoom(args.RoomID)
	if err != nil {
		return err
	}
	reply.Room = models.NewRoomView(r, "")
	return nil
}

type CloseRoomArgs struct {
	RoomID string
}

type CloseRoomReply struct {
	Closed bool
}

// CloseRoom removes a room; connected subscribers see their updates end.
func (a *AdminService) CloseRoom(args *CloseRoomArgs, reply *CloseRoomReply) error {
	if err := a.games.CloseRoom(args.RoomID); err != nil {
		return err
	}
	logger.Log.Infof("admin closed room %s", args.RoomID)
	reply.Closed = true
	return nil
}
