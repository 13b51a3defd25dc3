// Package redis 封装共享的 Redis 连接，供任务队列、对话历史与引导会话复用。
package redis
