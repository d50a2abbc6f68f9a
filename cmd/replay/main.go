package main

import (
	"flag"
	"fmt"
	"log"

	"skirmish/internal/recorder"
	"skirmish/pkg/core"
	"skirmish/pkg/netcode"
)

// replay 离线重放对局记录，打印终局世界，用于核对确定性
func main() {
	path := flag.String("journal", "", "对局记录文件 (.jsonl.zst)")
	end := flag.Uint64("end", 0, "重放到的帧，0 表示最后一条记录")
	flag.Parse()
	if *path == "" {
		log.Fatal("需要 -journal")
	}

	match, entries, err := recorder.ReadAll(*path)
	if err != nil {
		log.Fatalf("读取记录失败: %v", err)
	}
	if len(entries) == 0 {
		log.Fatalf("对局 %s 没有记录", match)
	}
	// 记录只包含非空帧，之前的帧都是空世界
	var start netcode.FrameNumber
	if entries[0].Frame > 0 {
		start = netcode.FrameNumber(entries[0].Frame) - 1
	}
	last := netcode.FrameNumber(*end)
	if last == 0 {
		last = netcode.FrameNumber(entries[len(entries)-1].Frame)
	}

	world, err := recorder.Replay(start, last, entries, core.DefaultRules{})
	if err != nil {
		log.Fatalf("重放失败: %v", err)
	}

	fmt.Printf("match %s frames %d..%d\n", match, start+1, last)
	for _, p := range world.Players.All() {
		fmt.Printf("player  %4d pos (%.1f, %.1f) hp %d dead %v\n", p.NetID, p.Position.X, p.Position.Y, p.Health, p.Dead)
	}
	for _, m := range world.Monsters.All() {
		fmt.Printf("monster %4d pos (%.1f, %.1f) hp %d dead %v\n", m.NetID, m.Position.X, m.Position.Y, m.Health, m.Dead)
	}
	fmt.Printf("missiles %d\n", world.Missiles.Len())
}
