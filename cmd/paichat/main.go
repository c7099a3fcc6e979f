// Package main 是终端聊天客户端的入口点。
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pai-chat-client/internal/config"
	"pai-chat-client/internal/model"
	"pai-chat-client/internal/repository"
	"pai-chat-client/internal/service"
	"pai-chat-client/pkg/api"
	"pai-chat-client/pkg/kvstore"
	"pai-chat-client/pkg/log"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	store, err := kvstore.NewStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatal("初始化本地存储失败", err)
	}

	// 装配状态核心：会话 -> 远程客户端 -> 收藏/对话 store
	sessionSvc := service.NewSessionService(repository.NewCredentialRepository(store))
	baseClient := api.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second, sessionSvc.Token)
	sessionSvc.SetAuthClient(api.NewAuthClient(baseClient))

	favoriteSvc := service.NewFavoriteService(
		repository.NewFavoriteCacheRepository(store),
		api.NewFavoriteClient(baseClient),
		sessionSvc,
	)
	sessionSvc.SetSyncEngine(favoriteSvc)

	chatSvc := service.NewChatService(
		api.NewConversationClient(baseClient),
		api.NewChatClient(baseClient),
		sessionSvc,
		cfg.API.StreamChat,
	)
	sessionSvc.AddResetHook(chatSvc.Reset)

	ctx := context.Background()
	if sessionSvc.RestoreSession(ctx) {
		if u := sessionSvc.CurrentUser(); u != nil {
			fmt.Printf("已恢复会话: %s\n", u.Email)
		}
	}

	// 发送失败以非阻塞横幅提示
	go func() {
		for err := range chatSvc.Errors() {
			fmt.Printf("\n[!] 消息发送失败: %v\n> ", err)
		}
	}()

	fmt.Println("paichat - 输入 /help 查看命令，直接输入内容发送消息")
	repl(ctx, sessionSvc, favoriteSvc, chatSvc)
}

func repl(ctx context.Context, sessionSvc service.SessionService, favoriteSvc service.FavoriteService, chatSvc service.ChatService) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			send(ctx, chatSvc, line)
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/help":
			printHelp()
		case "/quit":
			return
		case "/register", "/login":
			if len(fields) != 3 {
				fmt.Printf("用法: %s <email> <password>\n", fields[0])
				continue
			}
			var err error
			if fields[0] == "/register" {
				err = sessionSvc.Register(ctx, fields[1], fields[2])
			} else {
				err = sessionSvc.Login(ctx, fields[1], fields[2])
			}
			if err != nil {
				fmt.Printf("认证失败: %v\n", err)
				continue
			}
			fmt.Println("已登录")
		case "/logout":
			sessionSvc.OnAuthenticationCleared()
			fmt.Println("已退出登录")
		case "/fav":
			favCommand(ctx, favoriteSvc, fields[1:])
		case "/conv":
			convCommand(ctx, chatSvc, fields[1:])
		default:
			fmt.Println("未知命令，输入 /help 查看帮助")
		}
	}
}

func send(ctx context.Context, chatSvc service.ChatService, content string) {
	before := len(chatSvc.Messages())
	<-chatSvc.Send(ctx, content)
	for _, m := range chatSvc.Messages()[before:] {
		switch {
		case m.Role == model.RoleUser && m.DeliveryState == model.DeliveryFailed:
			fmt.Println("  (发送失败，消息保留，可重新输入重试)")
		case m.Role == model.RoleAssistant:
			fmt.Printf("assistant> %s\n", m.Content)
			for _, src := range m.Sources {
				fmt.Printf("  · %s (%s)\n", src.Title, src.Source)
			}
		}
	}
}

func favCommand(ctx context.Context, svc service.FavoriteService, args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		items, err := svc.List(ctx)
		if err != nil {
			fmt.Printf("获取收藏失败: %v\n", err)
			return
		}
		for _, it := range items {
			fmt.Printf("  [%d] %s - %s\n", it.ID, it.Title, it.URL)
		}
	case "add":
		if len(args) < 2 {
			fmt.Println("用法: /fav add <url> [title]")
			return
		}
		title := strings.Join(args[2:], " ")
		if _, err := svc.Add(ctx, title, args[1]); err != nil {
			fmt.Printf("添加收藏失败: %v\n", err)
		}
	case "del":
		id, err := strconv.ParseInt(args[len(args)-1], 10, 64)
		if err != nil {
			fmt.Println("用法: /fav del <id>")
			return
		}
		if err := svc.Delete(ctx, id); err != nil {
			fmt.Printf("删除收藏失败: %v\n", err)
		}
	default:
		fmt.Println("用法: /fav [list|add|del]")
	}
}

func convCommand(ctx context.Context, svc service.ChatService, args []string) {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		convs, err := svc.List(ctx)
		if err != nil {
			fmt.Printf("获取对话列表失败: %v\n", err)
			return
		}
		for _, c := range convs {
			fmt.Printf("  [%d] %s\n", c.ID, c.Title)
		}
	case "new":
		title := "New Chat"
		if len(args) > 1 {
			title = strings.Join(args[1:], " ")
		}
		if _, err := svc.Create(ctx, title); err != nil {
			fmt.Printf("创建对话失败: %v\n", err)
		}
	case "open":
		id, err := strconv.ParseInt(args[len(args)-1], 10, 64)
		if err != nil {
			fmt.Println("用法: /conv open <id>")
			return
		}
		if err := svc.Select(ctx, id); err != nil {
			fmt.Printf("打开对话失败: %v\n", err)
			return
		}
		for _, m := range svc.Messages() {
			fmt.Printf("%s> %s\n", m.Role, m.Content)
		}
	case "rename":
		if len(args) < 3 {
			fmt.Println("用法: /conv rename <id> <title>")
			return
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Println("用法: /conv rename <id> <title>")
			return
		}
		if err := svc.Rename(ctx, id, strings.Join(args[2:], " ")); err != nil {
			fmt.Printf("重命名失败: %v\n", err)
		}
	case "del":
		id, err := strconv.ParseInt(args[len(args)-1], 10, 64)
		if err != nil {
			fmt.Println("用法: /conv del <id>")
			return
		}
		if err := svc.Delete(ctx, id); err != nil {
			fmt.Printf("删除对话失败: %v\n", err)
		}
	default:
		fmt.Println("用法: /conv [list|new|open|rename|del]")
	}
}

func printHelp() {
	fmt.Println(`命令:
  /register <email> <password>  注册并登录
  /login <email> <password>     登录（触发本地收藏迁移）
  /logout                       退出登录（保留本地收藏缓存）
  /fav [list|add|del]           收藏管理
  /conv [list|new|open|rename|del]  对话管理
  /quit                         退出
  其他输入直接作为消息发送`)
}
