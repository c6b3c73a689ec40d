// fetchguardctl 是 fetchguard 的离线运维命令行工具。
//
// 用法:
//
//	fetchguardctl <命令> [命令参数]
//
// 命令:
//
//	classify <message...>      对错误信息分类并给出是否可重试
//	backoff                    打印某个类别的退避时间表
//	sanitize-email <raw>       清洗邮箱地址
//	check-password             从标准输入读取密码并校验
//	config validate <file>     校验配置文件
//	config watch <file>        监听配置文件并校验每次重载
//
// 退出码:
//
//	0: 成功
//	1: 执行失败或校验未通过
//	2: 参数错误（缺少参数、未知类别、未知命令等）
//
// 示例:
//
//	fetchguardctl classify "read tcp: ECONNRESET"
//	fetchguardctl backoff --category rate_limit --attempts 5
//	fetchguardctl backoff --config fetchguard.yaml --jitter
//	echo -n 'secret' | fetchguardctl check-password
//	fetchguardctl config validate fetchguard.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// createApp 创建 CLI 应用。
func createApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:     "fetchguardctl",
		Usage:    "fetchguard 离线运维工具",
		Version:  fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Commands: createCommands(),
		Reader:   stdin,
		Writer:   stdout,
		// ErrWriter 同时承接 flag 解析错误的输出
		ErrWriter: stderr,
		// 禁止 urfave/cli 直接调用 os.Exit，由 run 统一映射退出码
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := createApp(stdin, stdout, stderr).Run(ctx, args)
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		// flag 解析器已输出错误详情
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}

// isCLIUsageError 识别 urfave/cli 产生的参数错误。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"invalid value",
		"No help topic for",
		"Required flag",
	} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}
