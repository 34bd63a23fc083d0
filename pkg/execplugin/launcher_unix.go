//go:build unix

package execplugin

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"strconv"
	"syscall"
)

// Launch 解析身份、创建输出管道并在 exec 前切换 uid 启动命令
// 在父进程中拒绝 root，程序不会以特权身份运行
func (l *ProcessLauncher) Launch(ctx context.Context, src *Source) (Child, error) {
	if err := checkLaunchable(ctx, src); err != nil {
		return nil, err
	}

	cred, err := l.credential(src.User)
	if err != nil {
		return nil, err
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPipe, err)
	}

	// exec.Command 对不含 '/' 的命令走 PATH 查找，与 execlp 一致
	cmd := osexec.Command(src.Command)
	cmd.Args = []string{src.Argv0()}
	cmd.Env = l.Env
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, src.Command, err)
	}
	// 父进程只保留读端
	_ = w.Close()

	src.markStreaming(cmd.Process.Pid)
	return &processChild{cmd: cmd, stream: r}, nil
}

func (l *ProcessLauncher) credential(name string) (*syscall.Credential, error) {
	u, err := l.lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: `%s' has non-numeric uid %q", ErrUnknownIdentity, name, u.Uid)
	}
	if uid == 0 {
		return nil, fmt.Errorf("%w: `%s'", ErrPrivilegedIdentity, name)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: `%s' has non-numeric gid %q", ErrUnknownIdentity, name, u.Gid)
	}

	cred := &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
	if os.Geteuid() != 0 {
		// setgroups 需要 CAP_SETGID，非特权采集器只能以自身身份运行子进程
		cred.NoSetGroups = true
		return cred, nil
	}
	groupIDs, err := u.GroupIds()
	if err == nil {
		for _, g := range groupIDs {
			if id, convErr := strconv.ParseUint(g, 10, 32); convErr == nil {
				cred.Groups = append(cred.Groups, uint32(id))
			}
		}
	}
	return cred, nil
}
