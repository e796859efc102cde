package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/helixml/deskgate/pkg/gwlog"
	"github.com/helixml/deskgate/pkg/gwsocket"
	"github.com/helixml/deskgate/pkg/protocol"
	"github.com/helixml/deskgate/pkg/session"
	"github.com/helixml/deskgate/pkg/userctx"
	"github.com/helixml/deskgate/pkg/wire"
)

// wrapRecording mirrors sock's outbound instruction stream into a
// transcript file under dir. An empty dir disables recording; a
// failed create logs and serves the connection unrecorded rather than
// refusing it.
func wrapRecording(sock gwsocket.Socket, dir string, logger gwlog.Logger) gwsocket.Socket {
	if dir == "" {
		return sock
	}
	path := filepath.Join(dir, uuid.NewString()+".rec")
	f, err := os.Create(path)
	if err != nil {
		logger.Warn("session recording disabled, transcript create failed", "path", path, "err", err.Error())
		return sock
	}
	logger.Info("recording session", "path", path)
	return gwsocket.NewRecording(sock, f)
}

// handshakeOpcodes names the instructions a user must answer during
// negotiation before it is considered ready to join. All of them are
// optional: negotiation ends at the first non-handshake opcode,
// whether or not size has been seen, mirroring the original's
// permissive handshake tolerance for clients that skip fields.
var handshakeOpcodes = map[string]bool{
	"size": true, "audio": true, "video": true, "image": true, "timezone": true,
}

// serveConnection drives one socket end to end: advertise args, run
// the handshake until a non-handshake instruction is observed, join
// the user into sess, then dispatch steady-state instructions until
// the connection closes or the session stops.
func serveConnection(sess *session.Client, sock gwsocket.Socket, r io.Reader, owner bool, logger gwlog.Logger) {
	defer sock.Close()

	u := userctx.New(sock, owner)
	sess.SendArgs(u, sess.Args())

	sc := wire.NewScanner(r)

	for {
		ins, err := sc.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("handshake read failed", "err", err.Error(), "user_id", u.ID())
			}
			return
		}
		if !handshakeOpcodes[ins.Opcode] {
			// First non-handshake instruction ends negotiation; it is
			// replayed into steady-state dispatch below rather than
			// dropped.
			sess.SendReady(u)
			sess.Join(u, owner)
			dispatchLoop(sess, u, sc, ins, logger)
			return
		}
		sess.Handshake(u, ins)
	}
}

// dispatchLoop runs steady-state dispatch starting with the already
// decoded instruction first, then reads further instructions from sc
// until the connection closes.
func dispatchLoop(sess *session.Client, u *userctx.User, sc *wire.Scanner, first wire.Instruction, logger gwlog.Logger) {
	defer sess.Leave(u)

	sess.Dispatch(u, first)
	for {
		ins, err := sc.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("dispatch read failed", "err", err.Error(), "user_id", u.ID())
			}
			return
		}
		if ins.Opcode == string(protocol.OpDisconnect) {
			return
		}
		sess.Dispatch(u, ins)
	}
}
