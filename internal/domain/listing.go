package domain

// ImageSuffix 是归档图片文件名后缀，文件名形如 <unix>.jpg。
const ImageSuffix = ".jpg"

// ImageContentType 是归档图片响应的 Content-Type。
const ImageContentType = "image/jpeg"

// Listing 是某个桶内可用图片的 Unix 时间戳集合。
//
// 约束：集合语义（不含重复），不保证顺序；调用方不得假设已排序。
type Listing []int64
