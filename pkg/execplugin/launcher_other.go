//go:build !unix

package execplugin

import (
	"context"
)

// Launch 非 unix 平台无法切换身份，总是失败
func (l *ProcessLauncher) Launch(ctx context.Context, src *Source) (Child, error) {
	if err := checkLaunchable(ctx, src); err != nil {
		return nil, err
	}
	return nil, ErrUnsupportedPlatform
}
