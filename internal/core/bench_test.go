package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomFanout(b *testing.B, recipients int) {
	ctx := context.Background()
	st := newMemStore()
	hub := NewHub(st, nil, nil)

	members := []int64{1}
	for i := 0; i < recipients; i++ {
		members = append(members, int64(i+2))
	}
	st.addRoom(1, members...)

	conns := make([]*Conn, 0, recipients)
	for _, userID := range members[1:] {
		c := NewConn(fmt.Sprintf("c%d", userID), userID, "client")
		hub.Connect(ctx, c)
		conns = append(conns, c)
	}

	// Drain events for all but the first recipient to avoid queue backpressure.
	target := conns[0]
	for _, c := range conns[1:] {
		go func(cl *Conn) {
			for range cl.Events {
			}
		}(c)
	}
	drain(target)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.Send(ctx, 1, 1, "payload", ""); err != nil {
			b.Fatal(err)
		}
		<-target.Events // room channel
		<-target.Events // private channel
	}
}

func BenchmarkRoomFanout_10(b *testing.B)  { benchmarkRoomFanout(b, 10) }
func BenchmarkRoomFanout_100(b *testing.B) { benchmarkRoomFanout(b, 100) }
func BenchmarkRoomFanout_500(b *testing.B) { benchmarkRoomFanout(b, 500) }
