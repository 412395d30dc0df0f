package di

import (
	"go.uber.org/dig"
)

// Container 是依赖注入容器的全局实例
var Container *dig.Container

// InitContainer 初始化依赖注入容器
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// GetContainer 获取依赖注入容器实例，未初始化时创建
func GetContainer() *dig.Container {
	if Container == nil {
		return InitContainer()
	}
	return Container
}

// Invoke 封装dig.Invoke
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	return GetContainer().Invoke(function, opts...)
}

// Provide 封装dig.Provide
func Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	return GetContainer().Provide(constructor, opts...)
}

// Resolve 从全局容器取出类型T的实例
func Resolve[T any]() (T, error) {
	var out T
	err := Invoke(func(v T) {
		out = v
	})
	return out, err
}
