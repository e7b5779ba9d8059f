// TestClientServerIntegration performs an integration test with a real TCP
// client and server, the same way the reference stack's own root-level
// integration test does.
package modbus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kestrel-automation/modbus/client"
	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
	"github.com/kestrel-automation/modbus/logging"
	"github.com/kestrel-automation/modbus/server"
	"github.com/kestrel-automation/modbus/transporttcp"
	"github.com/kestrel-automation/modbus/wordstore"
)

func TestClientServerIntegration(t *testing.T) {
	logger := logging.NewLogger(logging.WithLevel(common.LevelDebug))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	holding0, holding1 := new(uint16), new(uint16)
	*holding0, *holding1 = 0x1234, 0x5678
	writeTarget := new(uint16)

	serverReady := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverReady <- err
			return
		}
		adapter := transporttcp.NewServerConn(conn, transporttcp.WithLogger(logger))
		srv := server.New(
			server.WithSlaveID(1),
			server.WithLogger(logger),
			server.WithTransport(adapter),
		)
		srv.Store().Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 2000, NbRegs: 1, DirectPtr: holding0})
		srv.Store().Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 2001, NbRegs: 1, DirectPtr: holding1})
		srv.Store().Insert(&wordstore.Word{RegType: wordstore.HoldingRegister, StartAddr: 2010, NbRegs: 1, DirectPtr: writeTarget})
		serverReady <- srv.Begin(ctx)
	}()

	adapter, err := transporttcp.NewClient(ln.Addr().String(), transporttcp.WithLogger(logger), transporttcp.WithDialTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("transporttcp.NewClient: %v", err)
	}
	defer adapter.Close()

	select {
	case err := <-serverReady:
		if err != nil {
			t.Fatalf("server accept/begin: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	cli := client.New(adapter, client.WithLogger(logger), client.WithRequestTimeout(5*time.Second))
	if err := cli.Begin(ctx); err != nil {
		t.Fatalf("client Begin: %v", err)
	}

	readReq := &frame.Frame{Type: frame.Request, FC: common.FuncReadHoldingRegisters, SlaveID: 1, RegAddress: 2000, RegCount: 2}
	resp, err := cli.SendRequest(ctx, readReq)
	if err != nil {
		t.Fatalf("ReadHoldingRegisters: %v", err)
	}
	if resp.ExceptionCode != common.ExceptionNone {
		t.Fatalf("unexpected exception: %v", resp.ExceptionCode)
	}
	if resp.Data[0] != 0x1234 || resp.Data[1] != 0x5678 {
		t.Fatalf("read = %04X %04X, want 1234 5678", resp.Data[0], resp.Data[1])
	}

	writeReq := &frame.Frame{Type: frame.Request, FC: common.FuncWriteSingleRegister, SlaveID: 1, RegAddress: 2010, RegCount: 1}
	writeReq.Data[0] = 0x4321
	if _, err := cli.SendRequest(ctx, writeReq); err != nil {
		t.Fatalf("WriteSingleRegister: %v", err)
	}
	if *writeTarget != 0x4321 {
		t.Fatalf("server holding register not updated: got %04X, want 4321", *writeTarget)
	}
}
