package discovery

import (
	"fmt"
	"log"
	"net"

	"github.com/hashicorp/consul/api"
)

// Registration 已注册的服务，关停时用来注销
type Registration struct {
	client    *api.Client
	serviceID string
}

// RegisterService 将 HTTP 服务注册到 Consul，健康检查走 /health
func RegisterService(serviceName string, servicePort int, consulAddr string) (*Registration, error) {
	// 1. 获取 Consul 客户端
	config := api.DefaultConfig()
	config.Address = consulAddr
	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	// 2. 获取本机 IP (非 Loopback)
	localIP, err := getOutboundIP()
	if err != nil {
		return nil, err
	}

	// 3. 创建注册对象，ID 使用 "服务名-IP-端口"
	serviceID := fmt.Sprintf("%s-%s-%d", serviceName, localIP, servicePort)
	registration := NewAgentRegistration(serviceID, serviceName, localIP, servicePort)

	// 4. 发送注册请求
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, err
	}

	log.Printf("Service Registered: %s (ID: %s) at %s:%d", serviceName, serviceID, localIP, servicePort)
	return &Registration{client: client, serviceID: serviceID}, nil
}

// NewAgentRegistration 构造注册对象
func NewAgentRegistration(serviceID, serviceName, ip string, port int) *api.AgentServiceRegistration {
	return &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Port:    port,
		Address: ip,
		Tags:    []string{"oldmarket", "http"},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", ip, port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s", // 挂了30秒后自动注销
		},
	}
}

// Deregister 从 Consul 注销
func (r *Registration) Deregister() error {
	if r == nil {
		return nil
	}
	return r.client.Agent().ServiceDeregister(r.serviceID)
}

// getOutboundIP 获取本机对外 IP
// 如果是 Docker 或局域网，不能注册 127.0.0.1
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}
