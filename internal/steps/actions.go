package steps

import (
	"context"
	"fmt"

	"arch-setup/internal/fsutil"
)

// Chrooter runs a shell command inside the target root.
type Chrooter interface {
	Run(ctx context.Context, cmd, user string) error
}

// ChrootCommand runs Cmd inside the target root as User (root when empty).
type ChrootCommand struct {
	Chroot Chrooter
	Cmd    string
	User   string
}

func (a ChrootCommand) Run(ctx context.Context) error {
	return a.Chroot.Run(ctx, a.Cmd, a.User)
}

func (a ChrootCommand) String() string {
	user := a.User
	if user == "" {
		user = "root"
	}
	return fmt.Sprintf("chroot[%s]: %s", user, a.Cmd)
}

// HostMove moves Src to Dst on the host. A missing Src is a no-op.
type HostMove struct {
	Src string
	Dst string
}

func (a HostMove) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fsutil.Move(a.Src, a.Dst)
	return err
}

func (a HostMove) String() string {
	return fmt.Sprintf("mv %s %s", a.Src, a.Dst)
}

// Func adapts a plain function into an Action.
type Func struct {
	Desc string
	Fn   func(ctx context.Context) error
}

func (a Func) Run(ctx context.Context) error { return a.Fn(ctx) }

func (a Func) String() string { return a.Desc }
