// Command bessgo-demo builds a small traffic-class tree and a classifier,
// then runs the scheduler for a bounded number of steps, printing a
// dispatch summary. It exists to exercise the sched and classify packages
// end to end outside of a test binary.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/pjferrell/bess/classify"
	"github.com/pjferrell/bess/classify/em"
	"github.com/pjferrell/bess/core/logging"
	"github.com/pjferrell/bess/core/resource"
	"github.com/pjferrell/bess/core/version"
	"github.com/pjferrell/bess/sched"
	"github.com/pjferrell/bess/sched/tc"
)

var logger = logging.New("cmd/bessgo-demo")

var app = &cli.App{
	Name:    "bessgo-demo",
	Usage:   "run a toy traffic-class tree through the scheduler",
	Version: version.V.String(),
	Commands: []*cli.Command{
		{
			Name:   "priority",
			Usage:  "two leaves under a priority node; the high-priority one drains first",
			Action: runPriorityDemo,
		},
		{
			Name:   "weightedfair",
			Usage:  "two leaves under a weighted-fair node sharing 3:1",
			Action: runWeightedFairDemo,
		},
		{
			Name:   "classify",
			Usage:  "route a handful of fake packets through an exact-match classifier",
			Action: runClassifyDemo,
		},
	},
}

func main() {
	sort.Sort(cli.CommandsByName(app.Commands))
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// countdownTask runs n times then empties itself out of its leaf.
type countdownTask struct {
	name      string
	leaf      *tc.Leaf
	remaining int
}

func (c *countdownTask) Run(ctx context.Context) resource.Usage {
	fmt.Println("dispatch:", c.name)
	if c.remaining > 0 {
		c.remaining--
		if c.remaining == 0 {
			c.leaf.RemoveTask(c)
		}
	}
	return resource.Usage{resource.Packets: 1}
}

func runPriorityDemo(c *cli.Context) error {
	reg := tc.NewRegistry()
	root, err := tc.NewPriority("root", reg)
	if err != nil {
		return err
	}
	hi, err := tc.NewLeaf("hi", reg)
	if err != nil {
		return err
	}
	lo, err := tc.NewLeaf("lo", reg)
	if err != nil {
		return err
	}
	hi.AddTask(&countdownTask{name: "hi", leaf: hi, remaining: 5}, 0)
	lo.AddTask(&countdownTask{name: "lo", leaf: lo, remaining: 5}, 0)
	if err := root.AddChild(hi, 10, 0); err != nil {
		return err
	}
	if err := root.AddChild(lo, 1, 0); err != nil {
		return err
	}

	tsc := uint64(0)
	s := sched.New(root, func() uint64 { tsc++; return tsc })
	for i := 0; i < 20 && !root.Blocked(); i++ {
		s.Step(context.Background())
	}
	logger.Sugar().Infof("priority demo: %d dispatches", s.Dispatches())
	return nil
}

func runWeightedFairDemo(c *cli.Context) error {
	reg := tc.NewRegistry()
	root, err := tc.NewWeightedFair("root", reg, resource.Packets)
	if err != nil {
		return err
	}
	a, err := tc.NewLeaf("share3", reg)
	if err != nil {
		return err
	}
	b, err := tc.NewLeaf("share1", reg)
	if err != nil {
		return err
	}
	a.AddTask(&countdownTask{name: "share3", leaf: a, remaining: 30}, 0)
	b.AddTask(&countdownTask{name: "share1", leaf: b, remaining: 10}, 0)
	if err := root.AddChild(a, 3, 0); err != nil {
		return err
	}
	if err := root.AddChild(b, 1, 0); err != nil {
		return err
	}

	tsc := uint64(0)
	s := sched.New(root, func() uint64 { tsc++; return tsc })
	for i := 0; i < 80 && !root.Blocked(); i++ {
		s.Step(context.Background())
	}
	logger.Sugar().Infof("weighted-fair demo: %d dispatches", s.Dispatches())
	return nil
}

type rawPacket struct {
	data []byte
}

func (p *rawPacket) ReadAttr(attrID int, size int) []byte {
	panic("bessgo-demo: no attributes configured")
}

func (p *rawPacket) ReadBytes(offset int, size int) []byte {
	return p.data[offset : offset+size]
}

func packetWithIPv4Src(src string) *rawPacket {
	buf := make([]byte, 64)
	copy(buf[26:30], net.ParseIP(src).To4())
	return &rawPacket{data: buf}
}

func runClassifyDemo(c *cli.Context) error {
	fields := []classify.Field{{AttrID: -1, Offset: 26, Size: 4}}
	clsf, err := em.Init(fields)
	if err != nil {
		return err
	}
	clsf.SetDefaultGate(0)
	if err := clsf.Add([][]byte{net.ParseIP("10.0.0.1").To4()}, 2); err != nil {
		return err
	}
	if err := clsf.Add([][]byte{net.ParseIP("10.0.0.2").To4()}, 3); err != nil {
		return err
	}

	for _, src := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.9"} {
		gate := clsf.Lookup(packetWithIPv4Src(src))
		fmt.Printf("%s -> gate %d\n", src, gate)
	}
	return nil
}
