package redis

import (
	"context"
	"fmt"
	"time"

	"SmartInventory/config"

	"github.com/redis/go-redis/v9"
)

type RedisClient struct {
	Client *redis.Client
}

// NewRedisClient 初始化并返回一个新的 RedisClient 实例
func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password, // 密码，没有则留空
		DB:       cfg.DB,       // 数据库
		PoolSize: cfg.PoolSize, // 连接池大小
		// 可选：添加超时配置
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// PING 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis client connection test failed: %w", err)
	}

	return &RedisClient{
		Client: client,
	}, nil
}

// Close 关闭 Redis 连接
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func onlineUsersKey(shopID uint) string {
	return fmt.Sprintf("chat:shop:%d:online_users", shopID)
}

// AddOnlineUser 把用户加入店铺在线列表，field 为 user_id
func (r *RedisClient) AddOnlineUser(ctx context.Context, shopID uint, userID uint, data []byte) error {
	key := onlineUsersKey(shopID)
	if err := r.Client.HSet(ctx, key, fmt.Sprintf("%d", userID), data).Err(); err != nil {
		return fmt.Errorf("failed to add online user to %s: %w", key, err)
	}
	// 设置过期时间，防止残留死数据
	r.Client.Expire(ctx, key, 24*time.Hour)
	return nil
}

func (r *RedisClient) RemoveOnlineUser(ctx context.Context, shopID uint, userID uint) error {
	key := onlineUsersKey(shopID)
	if err := r.Client.HDel(ctx, key, fmt.Sprintf("%d", userID)).Err(); err != nil {
		return fmt.Errorf("failed to remove online user from %s: %w", key, err)
	}
	return nil
}

// GetOnlineUsers 获取指定店铺的在线用户
func (r *RedisClient) GetOnlineUsers(ctx context.Context, shopID uint) (map[string]string, error) {
	key := onlineUsersKey(shopID)
	result, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch online users for key %s: %w", key, err)
	}
	return result, nil
}

func dailySalesKey(shopID uint, day time.Time) string {
	return fmt.Sprintf("sales:shop:%d:%s", shopID, day.Format("2006-01-02"))
}

// AddDailySales 累加店铺当日营业额（由 kafka 销售事件消费端调用）
func (r *RedisClient) AddDailySales(ctx context.Context, shopID uint, day time.Time, amount float64) error {
	key := dailySalesKey(shopID, day)
	if err := r.Client.IncrByFloat(ctx, key, amount).Err(); err != nil {
		return fmt.Errorf("failed to increment daily sales %s: %w", key, err)
	}
	r.Client.Expire(ctx, key, 90*24*time.Hour)
	return nil
}

func (r *RedisClient) GetDailySales(ctx context.Context, shopID uint, day time.Time) (float64, error) {
	val, err := r.Client.Get(ctx, dailySalesKey(shopID, day)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}
