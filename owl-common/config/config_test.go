package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "u",
		Password: "p",
		Database: "risk",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=risk sslmode=disable", c.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "pg")
	t.Setenv("TEST_DB_PORT", "6543")
	t.Setenv("TEST_DB_NAME", "models")
	t.Setenv("TEST_DB_MAX_CONNS", "not-a-number")

	c := DatabaseConfig{Host: "localhost", Port: 5432, MaxConns: 4}
	c.LoadFromEnv("TEST_DB")

	assert.Equal(t, "pg", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, "models", c.Database)
	// 非法数字保持原值
	assert.Equal(t, 4, c.MaxConns)
}

func TestMQTTConfig_LoadFromEnv_QoS(t *testing.T) {
	t.Setenv("TEST_MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("TEST_MQTT_QOS", "2")

	c := MQTTConfig{}
	c.LoadFromEnv("TEST_MQTT")
	assert.Equal(t, "tcp://broker:1883", c.Broker)
	assert.Equal(t, byte(2), c.QoS)

	t.Setenv("TEST_MQTT_QOS", "7")
	c.LoadFromEnv("TEST_MQTT")
	assert.Equal(t, byte(2), c.QoS)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "cache:6380")
	t.Setenv("TEST_REDIS_DB", "3")

	c := RedisConfig{Addr: "localhost:6379"}
	c.LoadFromEnv("TEST_REDIS")
	assert.Equal(t, "cache:6380", c.Addr)
	assert.Equal(t, 3, c.DB)
}
