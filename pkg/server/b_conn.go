package server

import (
	"context"
	"io"
	"net"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"xacto/pkg/a_misc/errmsg"
	"xacto/pkg/db"
	"xacto/pkg/protocol"
	"xacto/pkg/txn"
)

// serveConn is the per-connection worker: one transaction, served until
// COMMIT, an abort, or a transport error.
func (s *Server) serveConn(conn net.Conn) {
	defer s.workers.Done()
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	if err := s.registry.Register(conn); err != nil {
		log.Warn("refuse connection", zap.String("remote", remote), zap.Error(err))
		return
	}
	connectionsGauge.Inc()
	defer func() {
		if err := s.registry.Unregister(conn); err != nil {
			log.Error("unregister connection failed", zap.String("remote", remote), zap.Error(err))
		}
		connectionsGauge.Dec()
	}()

	tx, err := s.db.Begin()
	if err != nil {
		log.Warn("begin transaction failed", zap.String("remote", remote), zap.Error(err))
		return
	}
	log.Info("client connected", zap.String("remote", remote), zap.Uint64("txn", tx.ID()))

	w := &worker{conn: conn, tx: tx, maxPayload: s.cfg.MaxPayload}
	err = w.serve(s.ctx)
	switch {
	case err == nil:
	case errors.Cause(err) == io.EOF:
		log.Info("client closed connection", zap.String("remote", remote), zap.Uint64("txn", tx.ID()))
	case txn.IsInvariantViolation(err):
		s.OnFatal(err)
	default:
		log.Warn("serve connection failed", zap.String("remote", remote), zap.Uint64("txn", tx.ID()), zap.Error(err))
	}

	// no-op when the transaction already ended
	if _, err := tx.Abort(); err != nil {
		s.OnFatal(err)
	}
	log.Info("client disconnected", zap.String("remote", remote), zap.Uint64("txn", tx.ID()), zap.Stringer("status", tx.Status()))
}

type worker struct {
	conn       net.Conn
	tx         *db.Txn
	maxPayload uint32
}

func (w *worker) serve(ctx context.Context) error {
	for {
		pkt, _, err := protocol.RecvLimit(w.conn, w.maxPayload)
		if err != nil {
			return err
		}
		requestCounter.WithLabelValues(pkt.Type.String()).Inc()
		log.Debug("request", zap.Uint64("txn", w.tx.ID()), zap.Stringer("packet", pkt))

		var done bool
		switch pkt.Type {
		case protocol.Get:
			done, err = w.get(pkt)
		case protocol.Put:
			done, err = w.put(pkt)
		case protocol.Commit:
			return w.commit(ctx, pkt)
		default:
			return errors.Wrapf(errmsg.ProtocolViolation, "unexpected %s packet", pkt.Type)
		}
		if err != nil || done {
			return err
		}
	}
}

// recvData reads the DATA packet following a request. A null payload is
// returned as nil.
func (w *worker) recvData() ([]byte, error) {
	pkt, data, err := protocol.RecvLimit(w.conn, w.maxPayload)
	if err != nil {
		return nil, err
	}
	if pkt.Type != protocol.Data {
		return nil, errors.Wrapf(errmsg.ProtocolViolation, "expected data, got %s", pkt.Type)
	}
	return data, nil
}

func (w *worker) reply(req *protocol.Packet, typ protocol.Type, status txn.Status, data []byte) error {
	pkt := protocol.NewPacket(typ, status, req.Serial)
	if typ == protocol.Value && len(data) == 0 {
		pkt.Null = true
		data = nil
	}
	return protocol.Send(w.conn, pkt, data)
}

// aborted answers a request the store refused; the loop ends afterwards.
func (w *worker) aborted(req *protocol.Packet) (bool, error) {
	return true, w.reply(req, protocol.Reply, txn.Aborted, nil)
}

func (w *worker) get(req *protocol.Packet) (bool, error) {
	key, err := w.recvData()
	if err != nil {
		return true, err
	}

	value, _, err := w.tx.Get(key)
	if errors.Cause(err) == errmsg.TransactionAborted {
		return w.aborted(req)
	}
	if err != nil {
		return true, err
	}

	if err := w.reply(req, protocol.Reply, w.tx.Status(), nil); err != nil {
		return true, err
	}
	return false, w.reply(req, protocol.Value, w.tx.Status(), value)
}

func (w *worker) put(req *protocol.Packet) (bool, error) {
	key, err := w.recvData()
	if err != nil {
		return true, err
	}
	value, err := w.recvData()
	if err != nil {
		return true, err
	}

	err = w.tx.Set(key, value)
	if errors.Cause(err) == errmsg.TransactionAborted {
		return w.aborted(req)
	}
	if err != nil {
		return true, err
	}
	return false, w.reply(req, protocol.Reply, w.tx.Status(), nil)
}

func (w *worker) commit(ctx context.Context, req *protocol.Packet) error {
	status, err := w.tx.Commit(ctx)
	if txn.IsInvariantViolation(err) {
		return err
	}
	if err != nil {
		log.Warn("commit interrupted", zap.Uint64("txn", w.tx.ID()), zap.Error(err))
	}
	log.Debug("commit", zap.Uint64("txn", w.tx.ID()), zap.Stringer("status", status))
	return w.reply(req, protocol.Reply, status, nil)
}
