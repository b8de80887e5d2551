// Package model 是离线训练好的打分模型的加载与推理。
// 模型本身在别处训练，这里只负责读取权重文件并打分。
package model

// RankModel 是打分模型的最小抽象：输入特征，输出一个可比较的分数。
//
// 使用场景：
//   - 召回类型偏好：用户 one-hot 特征 + recall_type_id → 点击概率
//   - 点击率先验：Stage A 中覆盖兴趣/属性混合分
type RankModel interface {
	Name() string
	Predict(features map[string]float64) (float64, error)
}
